package upload

import (
	"context"
	"io"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/internal/service/status"
)

// UploadProcessor is the surface the HTTP handlers talk to.
type UploadProcessor interface {
	SelectFile(ctx context.Context, sessionID string, info models.FileInfo) error
	ClearFile(ctx context.Context, sessionID string) error
	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)
	Status(ctx context.Context, sessionID string) (status.Projection, error)
}

// SubmitRequest is one press of the submit button. File is nil when the
// client did not attach one.
type SubmitRequest struct {
	SessionID        string
	File             *models.FileInfo
	Content          io.Reader
	UserName         string
	OrganizationName string
}

// Submission identifies the run started for a request.
type Submission struct {
	RunID      string `json:"runId"`
	SessionID  string `json:"sessionId"`
	Generation uint64 `json:"generation"`
}

// Dispatcher starts a run without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *models.RunJob) error
}
