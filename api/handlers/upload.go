package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/internal/service/status"
	"github.com/arena2036/vec-aas-uploader/internal/service/upload"
	"github.com/arena2036/vec-aas-uploader/internal/utils/validator"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
	"github.com/arena2036/vec-aas-uploader/pkg/sequencer"
)

// multipart overhead allowed on top of the file ceiling
const formOverhead = 1 << 20

type UploadHandler struct {
	service       upload.UploadProcessor
	maxFileSize   int64
	eventInterval time.Duration
	logger        logger.Logger
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Field   string            `json:"field,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

type SessionResponse struct {
	SessionID string `json:"sessionId"`
}

type SelectFileResponse struct {
	SessionID string          `json:"sessionId"`
	File      models.FileInfo `json:"file"`
	SizeLabel string          `json:"sizeLabel"`
}

func NewUploadHandler(service upload.UploadProcessor, maxFileSize int64, eventInterval time.Duration, log logger.Logger) *UploadHandler {
	if maxFileSize <= 0 {
		maxFileSize = validator.DefaultMaxFileSize
	}
	if eventInterval <= 0 {
		eventInterval = 500 * time.Millisecond
	}
	return &UploadHandler{
		service:       service,
		maxFileSize:   maxFileSize,
		eventInterval: eventInterval,
		logger:        log.Named("api"),
	}
}

// CreateSession 创建上传会话
func (h *UploadHandler) CreateSession(c *gin.Context) {
	c.JSON(http.StatusCreated, SessionResponse{SessionID: uuid.New().String()})
}

// SelectFile runs the acceptance filter on a newly selected file. The body is
// either the multipart file itself or its JSON description.
func (h *UploadHandler) SelectFile(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	var info models.FileInfo
	if c.ContentType() == gin.MIMEJSON {
		if err := c.ShouldBindJSON(&info); err != nil {
			h.handleError(c, http.StatusBadRequest, "Invalid file description", err)
			return
		}
	} else {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+formOverhead)
		_, header, err := c.Request.FormFile("file")
		if err != nil {
			h.handleError(c, http.StatusBadRequest, "Invalid file upload", h.fileError(err))
			return
		}
		info = validator.FileInfoFromHeader(header)
	}

	if err := h.service.SelectFile(c.Request.Context(), sessionID, info); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to select file", err)
		return
	}

	c.JSON(http.StatusOK, SelectFileResponse{
		SessionID: sessionID,
		File:      info,
		SizeLabel: validator.FormatFileSize(info.Size),
	})
}

// ClearFile 清除已选文件
func (h *UploadHandler) ClearFile(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	if err := h.service.ClearFile(c.Request.Context(), sessionID); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to clear file", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Submit 提交上传表单, answering as soon as the run is dispatched.
func (h *UploadHandler) Submit(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+formOverhead)

	req := upload.SubmitRequest{
		SessionID:        sessionID,
		UserName:         c.PostForm("userName"),
		OrganizationName: c.PostForm("organizationName"),
	}

	file, header, err := c.Request.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		info := validator.FileInfoFromHeader(header)
		req.File = &info
		req.Content = file
	case errors.Is(err, http.ErrMissingFile):
	default:
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", h.fileError(err))
		return
	}

	submission, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to submit upload", err)
		return
	}

	c.JSON(http.StatusAccepted, submission)
}

// GetStatus 获取会话状态
func (h *UploadHandler) GetStatus(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	p, err := h.service.Status(c.Request.Context(), sessionID)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// StreamStatus pushes the projection as server-sent events whenever it
// changes, until the run is terminal or the client goes away.
func (h *UploadHandler) StreamStatus(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	ticker := time.NewTicker(h.eventInterval)
	defer ticker.Stop()

	var last status.Projection
	sent := false

	c.Stream(func(w io.Writer) bool {
		p, err := h.service.Status(ctx, sessionID)
		if err != nil {
			h.logger.Error("Failed to get status for stream",
				logger.String("sessionId", sessionID),
				logger.Error(err),
			)
			c.SSEvent("error", ErrorResponse{Error: "status_unavailable", Message: "Failed to get status"})
			return false
		}

		if !sent || p != last {
			c.SSEvent("status", p)
			last, sent = p, true
		}
		if p.Terminal() {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			return true
		}
	})
}

// Health 健康检查
func (h *UploadHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *UploadHandler) sessionID(c *gin.Context) (string, bool) {
	raw := c.Param("sessionId")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid session id", err)
		return "", false
	}
	sessionID := id.String()
	c.Request = c.Request.WithContext(logger.WithSessionID(c.Request.Context(), sessionID))
	return sessionID, true
}

func (h *UploadHandler) fileError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return validator.TooLarge(h.maxFileSize)
	}
	return err
}

// handleError 统一错误处理. Validation failures always answer 400 with the
// code the client renders; other errors use httpStatus.
func (h *UploadHandler) handleError(c *gin.Context, httpStatus int, message string, err error) {
	log := logger.FromContext(c.Request.Context(), h.logger)

	if verr, ok := validator.AsValidationError(err); ok {
		log.Info("Request rejected",
			logger.String("path", c.Request.URL.Path),
			logger.String("code", verr.Code),
		)
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: verr.Message,
			Code:    verr.Code,
			Field:   verr.Field,
			Params:  verr.Params,
		})
		return
	}

	if errors.Is(err, sequencer.ErrEmptySession) {
		httpStatus = http.StatusBadRequest
	}

	if httpStatus >= http.StatusInternalServerError {
		log.Error(message,
			logger.String("path", c.Request.URL.Path),
			logger.Error(err),
		)
	} else {
		log.Info(message,
			logger.String("path", c.Request.URL.Path),
			logger.Error(err),
		)
	}

	response := ErrorResponse{
		Error:   http.StatusText(httpStatus),
		Message: message,
	}
	c.AbortWithStatusJSON(httpStatus, response)
}
