package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/internal/service/status"
	"github.com/arena2036/vec-aas-uploader/internal/service/workflow"
	"github.com/arena2036/vec-aas-uploader/internal/utils/validator"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
	"github.com/arena2036/vec-aas-uploader/pkg/sequencer"
	"github.com/arena2036/vec-aas-uploader/pkg/storage"
)

type UploadService struct {
	validator  *validator.FileValidator
	guard      *sequencer.Guard
	storage    storage.Storage
	dispatcher Dispatcher
	logger     logger.Logger
}

func NewService(
	v *validator.FileValidator,
	guard *sequencer.Guard,
	store storage.Storage,
	dispatcher Dispatcher,
	log logger.Logger,
) *UploadService {
	return &UploadService{
		validator:  v,
		guard:      guard,
		storage:    store,
		dispatcher: dispatcher,
		logger:     log.Named("upload"),
	}
}

// SelectFile supersedes whatever the session was showing, then runs the
// acceptance filter on the new candidate.
func (s *UploadService) SelectFile(ctx context.Context, sessionID string, info models.FileInfo) error {
	if err := s.guard.Invalidate(ctx, sessionID); err != nil {
		return err
	}
	return s.validator.Accept(info)
}

// ClearFile supersedes whatever the session was showing.
func (s *UploadService) ClearFile(ctx context.Context, sessionID string) error {
	return s.guard.Invalidate(ctx, sessionID)
}

// Submit validates the form, starts a new generation and dispatches the run.
// Validation failures never start a run.
func (s *UploadService) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	log := logger.FromContext(ctx, s.logger)

	var errs validator.ValidationErrors
	if req.File == nil || req.Content == nil {
		errs = append(errs, validator.FileRequired())
	}
	userName, orgName, err := validator.ValidateForm(req.UserName, req.OrganizationName)
	if err != nil {
		var formErrs validator.ValidationErrors
		if errors.As(err, &formErrs) {
			errs = append(errs, formErrs...)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if err := s.validator.Accept(*req.File); err != nil {
		return nil, err
	}

	// declared sizes can lie
	content, err := io.ReadAll(io.LimitReader(req.Content, s.validator.MaxFileSize()+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(content)) > s.validator.MaxFileSize() {
		return nil, validator.TooLarge(s.validator.MaxFileSize())
	}

	token, err := s.guard.Begin(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	// the client sees the upload running while the job waits for an executor
	if _, err := s.guard.Apply(ctx, token, models.ProcessingUpdate(models.StepUpload)); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	key := fmt.Sprintf("uploads/%s/%s", runID, filepath.Base(req.File.Filename))
	if _, err := s.storage.Store(ctx, bytes.NewReader(content), key); err != nil {
		s.failRun(ctx, token, log)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	job := &models.RunJob{
		RunID:      runID,
		SessionID:  token.SessionID,
		Generation: token.Generation,
		FileKey:    key,
		File: models.FileInfo{
			Filename:    req.File.Filename,
			Size:        int64(len(content)),
			ContentType: req.File.ContentType,
		},
		UserName:         userName,
		OrganizationName: orgName,
		CreatedAt:        time.Now(),
	}

	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		log.Error("Failed to dispatch run",
			logger.String("runId", runID),
			logger.Error(err),
		)
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			log.Warn("Failed to delete stored file", logger.String("key", key), logger.Error(delErr))
		}
		s.failRun(ctx, token, log)
		return nil, fmt.Errorf("failed to dispatch run: %w", err)
	}

	log.Info("Run submitted",
		logger.String("runId", runID),
		logger.Uint64("generation", token.Generation),
		logger.String("filename", job.File.Filename),
		logger.Int64("size", job.File.Size),
	)

	return &Submission{
		RunID:      runID,
		SessionID:  token.SessionID,
		Generation: token.Generation,
	}, nil
}

// failRun marks the upload step failed for a run that never got dispatched.
func (s *UploadService) failRun(ctx context.Context, token sequencer.Token, log logger.Logger) {
	update := models.FailedUpdate(models.StepUpload, workflow.MessageUnexpectedError)
	if _, err := s.guard.Apply(ctx, token, update); err != nil {
		log.Error("Failed to record run failure", logger.Error(err))
	}
}

func (s *UploadService) Status(ctx context.Context, sessionID string) (status.Projection, error) {
	return s.guard.Status(ctx, sessionID)
}
