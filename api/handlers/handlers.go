package handlers

import (
	"time"

	"github.com/arena2036/vec-aas-uploader/internal/service/upload"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

type Handlers struct {
	Upload *UploadHandler
}

func NewHandlers(
	uploadService upload.UploadProcessor,
	maxFileSize int64,
	eventInterval time.Duration,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Upload: NewUploadHandler(uploadService, maxFileSize, eventInterval, logger),
	}
}
