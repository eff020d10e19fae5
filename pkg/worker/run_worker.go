package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
	"github.com/arena2036/vec-aas-uploader/pkg/queue"
)

// RunExecutor executes one workflow run.
type RunExecutor interface {
	Execute(ctx context.Context, job *models.RunJob) error
}

type RunWorker struct {
	BaseWorker
	executor RunExecutor
}

func NewRunWorker(cfg *Config, executor RunExecutor, log logger.Logger) *RunWorker {
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = map[string]int{
			queue.QueueCritical: 6,
			queue.QueueDefault:  3,
		}
	}

	server := asynq.NewServer(cfg.RedisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			log.Error("Task failed",
				logger.String("type", t.Type()),
				logger.Error(err),
			)
		}),
	})

	w := &RunWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		executor: executor,
	}

	// 注册任务处理器
	w.mux.HandleFunc(queue.TaskTypeUploadRun, w.HandleRun)
	return w
}

// HandleRun is the asynq handler for upload:run tasks.
func (w *RunWorker) HandleRun(ctx context.Context, t *asynq.Task) error {
	job, err := queue.ParseRunJob(t.Payload())
	if err != nil {
		w.logger.Error("Failed to parse task",
			logger.String("payload", string(t.Payload())),
			logger.Error(err),
		)
		// a malformed payload never becomes valid
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Processing upload run",
		logger.String("runId", job.RunID),
		logger.String("sessionId", job.SessionID),
		logger.Uint64("generation", job.Generation),
	)

	if err := w.executor.Execute(ctx, job); err != nil {
		return fmt.Errorf("failed to execute run %s: %w", job.RunID, err)
	}
	return nil
}

func (w *RunWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()

	return nil
}
