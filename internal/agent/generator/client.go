package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

// ErrUpstream is matched by every failure reported by the generator service.
var ErrUpstream = errors.New("aas generator request failed")

// ErrorKind classifies generator failures.
type ErrorKind string

const (
	KindBadRequest  ErrorKind = "bad-request"
	KindConflict    ErrorKind = "conflict"
	KindServerError ErrorKind = "server-error"
	KindUnknown     ErrorKind = "unknown"
)

// UpstreamError carries the classification and the human readable message of
// a failed generator call.
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// CreateAasRequest 创建 AAS 请求
type CreateAasRequest struct {
	AssetIDShort string
	BlueprintIDs []string
	// Data is serialized as the "data" member; *converters.Node keeps element order.
	Data     interface{}
	Language string
}

type createAasBody struct {
	BlueprintsIDs []string    `json:"blueprintsIds,omitempty"`
	Data          interface{} `json:"data,omitempty"`
	Language      string      `json:"language,omitempty"`
}

// CreateAasResponse identifies the created shell. AasIDEncoded is the compact
// (base64url) form used in viewer URLs.
type CreateAasResponse struct {
	AasID        string   `json:"aasId"`
	AasIDEncoded string   `json:"aasIdEncoded,omitempty"`
	SubmodelIDs  []string `json:"submodelIds,omitempty"`
}

type problemDetails struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Client creates asset administration shells.
type Client interface {
	CreateAas(ctx context.Context, req CreateAasRequest) (*CreateAasResponse, error)
}

// Config 生成器配置
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout of zero leaves the call unbounded.
	Timeout time.Duration
}

// HTTPClient talks to the AAS generator REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.Logger
}

func NewHTTPClient(cfg Config, log logger.Logger) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("generator base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid generator base url: %w", err)
	}

	return &HTTPClient{
		baseURL: base,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log.Named("generator"),
	}, nil
}

// CreateAas posts the parsed data to /AasCreator/{assetIdShort}.
func (c *HTTPClient) CreateAas(ctx context.Context, req CreateAasRequest) (*CreateAasResponse, error) {
	endpoint := c.baseURL + "/AasCreator/" + url.PathEscape(req.AssetIDShort)

	var body io.Reader
	if len(req.BlueprintIDs) > 0 || req.Data != nil || req.Language != "" {
		reqData, err := json.Marshal(createAasBody{
			BlueprintsIDs: req.BlueprintIDs,
			Data:          req.Data,
			Language:      req.Language,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(reqData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("ApiKey", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("AAS generator request failed",
			logger.String("assetIdShort", req.AssetIDShort),
			logger.Error(err),
		)
		return nil, &UpstreamError{Kind: KindUnknown, Message: "Failed to create AAS", Err: err}
	}
	defer resp.Body.Close()

	c.logger.Info("AAS generator responded",
		logger.String("assetIdShort", req.AssetIDShort),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classify(resp)
	}

	var result CreateAasResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &UpstreamError{
			Kind:       KindUnknown,
			StatusCode: resp.StatusCode,
			Message:    "Failed to create AAS",
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return &result, nil
}

// classify maps an error response to its kind. The message prefers the
// problem title, then the detail, then a fixed fallback per kind.
func classify(resp *http.Response) *UpstreamError {
	var problem problemDetails
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = json.Unmarshal(data, &problem)

	var kind ErrorKind
	var fallback string
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		kind, fallback = KindBadRequest, "Bad request"
	case resp.StatusCode == http.StatusConflict:
		kind, fallback = KindConflict, "AAS already exists"
	case resp.StatusCode >= 500:
		kind, fallback = KindServerError, "Server error"
	default:
		kind, fallback = KindUnknown, "An error occurred"
	}

	message := fallback
	if problem.Title != "" {
		message = problem.Title
	} else if problem.Detail != "" {
		message = problem.Detail
	}

	return &UpstreamError{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
