package generator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(Config{BaseURL: srv.URL + "/", APIKey: "secret", Timeout: 5 * time.Second}, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, srv
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient(Config{BaseURL: "  "}, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestCreateAasSuccess(t *testing.T) {
	var (
		gotPath   string
		gotKey    string
		gotBody   map[string]interface{}
		gotMethod string
	)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.EscapedPath()
		gotKey = r.Header.Get("ApiKey")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"aasId":"https://example.com/ids/aas/1","aasIdEncoded":"abc123"}`))
	})

	resp, err := c.CreateAas(context.Background(), CreateAasRequest{
		AssetIDShort: "Acme-Jane-harness",
		BlueprintIDs: []string{"bp-1"},
		Data:         map[string]string{"k": "v"},
		Language:     "en",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/AasCreator/Acme-Jane-harness", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, []interface{}{"bp-1"}, gotBody["blueprintsIds"])
	assert.Equal(t, map[string]interface{}{"k": "v"}, gotBody["data"])
	assert.Equal(t, "en", gotBody["language"])

	assert.Equal(t, "https://example.com/ids/aas/1", resp.AasID)
	assert.Equal(t, "abc123", resp.AasIDEncoded)
}

func TestCreateAasOmitsEmptyBody(t *testing.T) {
	var body []byte
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"aasId":"x"}`))
	})

	_, err := c.CreateAas(context.Background(), CreateAasRequest{AssetIDShort: "a"})
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestCreateAasErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{"bad request fallback", http.StatusBadRequest, ``, KindBadRequest, "Bad request"},
		{"bad request title", http.StatusBadRequest, `{"title":"Invalid data","detail":"d"}`, KindBadRequest, "Invalid data"},
		{"conflict fallback", http.StatusConflict, `{}`, KindConflict, "AAS already exists"},
		{"conflict detail", http.StatusConflict, `{"detail":"Shell Acme-Jane-harness exists"}`, KindConflict, "Shell Acme-Jane-harness exists"},
		{"server error", http.StatusBadGateway, `not json`, KindServerError, "Server error"},
		{"other status", http.StatusNotFound, ``, KindUnknown, "An error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			resp, err := c.CreateAas(context.Background(), CreateAasRequest{AssetIDShort: "a"})
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrUpstream)

			var upstream *UpstreamError
			require.ErrorAs(t, err, &upstream)
			assert.Equal(t, tt.kind, upstream.Kind)
			assert.Equal(t, tt.status, upstream.StatusCode)
			assert.Equal(t, tt.message, upstream.Message)
		})
	}
}

func TestCreateAasTransportError(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.CreateAas(context.Background(), CreateAasRequest{AssetIDShort: "a"})
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, KindUnknown, upstream.Kind)
	assert.Equal(t, "Failed to create AAS", upstream.Message)
}

func TestCreateAasEscapesIdentifier(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"aasId":"x"}`))
	})

	_, err := c.CreateAas(context.Background(), CreateAasRequest{AssetIDShort: "a b/c"})
	require.NoError(t, err)
	assert.Equal(t, "/AasCreator/a%20b%2Fc", gotPath)
}
