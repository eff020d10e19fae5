package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/internal/service/workflow"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
	"github.com/arena2036/vec-aas-uploader/pkg/sequencer"
	"github.com/arena2036/vec-aas-uploader/pkg/storage"
)

// Executor runs a dispatched job and feeds its updates through the guard.
type Executor struct {
	runner  workflow.Runner
	guard   *sequencer.Guard
	storage storage.Storage
	maxSize int64
	timeout time.Duration
	logger  logger.Logger
}

type ExecutorConfig struct {
	MaxFileSize int64
	Timeout     time.Duration
}

func NewExecutor(
	runner workflow.Runner,
	guard *sequencer.Guard,
	store storage.Storage,
	cfg ExecutorConfig,
	log logger.Logger,
) *Executor {
	return &Executor{
		runner:  runner,
		guard:   guard,
		storage: store,
		maxSize: cfg.MaxFileSize,
		timeout: cfg.Timeout,
		logger:  log.Named("executor"),
	}
}

// Execute skips jobs that were superseded while queued. Otherwise it loads the
// file, runs the workflow and applies updates until the run goes stale.
func (e *Executor) Execute(ctx context.Context, job *models.RunJob) error {
	token := sequencer.Token{SessionID: job.SessionID, Generation: job.Generation}
	log := e.logger.With(
		logger.String("runId", job.RunID),
		logger.String("sessionId", job.SessionID),
		logger.Uint64("generation", job.Generation),
	)
	// status writes must outlive a run deadline so the cancellation is recorded
	guardCtx := context.WithoutCancel(ctx)
	defer e.cleanup(guardCtx, job, log)

	current, err := e.guard.IsCurrent(guardCtx, token)
	if err != nil {
		return err
	}
	if !current {
		log.Info("Skipping superseded run")
		return nil
	}

	content, err := storage.ReadAll(ctx, e.storage, job.FileKey, e.maxSize)
	if err != nil {
		log.Error("Failed to load uploaded file", logger.Error(err))
		_, applyErr := e.guard.Consume(guardCtx, token, replay(
			models.ProcessingUpdate(models.StepUpload),
			models.FailedUpdate(models.StepUpload, workflow.MessageUnexpectedError),
		))
		if applyErr != nil {
			return applyErr
		}
		return fmt.Errorf("failed to load file: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req := models.UploadRequest{
		File: models.UploadFile{
			FileInfo: job.File,
			Content:  content,
		},
		UserName:         job.UserName,
		OrganizationName: job.OrganizationName,
	}

	start := time.Now()
	applied, err := e.guard.Consume(guardCtx, token, e.runner.Run(ctx, req))
	if err != nil {
		return err
	}

	log.Info("Run finished",
		logger.Int("appliedUpdates", applied),
		logger.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Abandon settles a job that will never run: the upload step fails with the
// cancellation message, unless the run was superseded, and the stored file is
// removed.
func (e *Executor) Abandon(ctx context.Context, job *models.RunJob) error {
	token := sequencer.Token{SessionID: job.SessionID, Generation: job.Generation}
	log := e.logger.With(
		logger.String("runId", job.RunID),
		logger.String("sessionId", job.SessionID),
		logger.Uint64("generation", job.Generation),
	)
	guardCtx := context.WithoutCancel(ctx)
	defer e.cleanup(guardCtx, job, log)

	_, err := e.guard.Consume(guardCtx, token, replay(
		models.ProcessingUpdate(models.StepUpload),
		models.FailedUpdate(models.StepUpload, workflow.MessageCancelled),
	))
	return err
}

func (e *Executor) cleanup(ctx context.Context, job *models.RunJob, log logger.Logger) {
	if err := e.storage.Delete(ctx, job.FileKey); err != nil {
		log.Warn("Failed to delete uploaded file",
			logger.String("key", job.FileKey),
			logger.Error(err),
		)
	}
}

func replay(updates ...models.WorkflowUpdate) <-chan models.WorkflowUpdate {
	ch := make(chan models.WorkflowUpdate, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)
	return ch
}
