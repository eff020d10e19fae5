package upload

import (
	"context"
	"sync"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
	"github.com/arena2036/vec-aas-uploader/pkg/queue"
	"github.com/arena2036/vec-aas-uploader/pkg/worker"
)

// JobRunner executes dispatched jobs and settles the ones that never start.
type JobRunner interface {
	worker.RunExecutor
	Abandon(ctx context.Context, job *models.RunJob) error
}

// LocalDispatcher executes runs on goroutines of the API process.
type LocalDispatcher struct {
	ctx      context.Context
	executor JobRunner
	slots    chan struct{}
	wg       sync.WaitGroup
	logger   logger.Logger
}

// NewLocalDispatcher runs at most concurrency jobs at once. Runs are bound to
// ctx, not to the request that submitted them.
func NewLocalDispatcher(ctx context.Context, executor JobRunner, concurrency int, log logger.Logger) *LocalDispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LocalDispatcher{
		ctx:      ctx,
		executor: executor,
		slots:    make(chan struct{}, concurrency),
		logger:   log.Named("dispatcher"),
	}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, job *models.RunJob) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		select {
		case d.slots <- struct{}{}:
		case <-d.ctx.Done():
			d.logger.Warn("Dropping run before it started",
				logger.String("runId", job.RunID),
				logger.String("sessionId", job.SessionID),
			)
			if err := d.executor.Abandon(d.ctx, job); err != nil {
				d.logger.Error("Failed to settle dropped run",
					logger.String("runId", job.RunID),
					logger.Error(err),
				)
			}
			return
		}
		defer func() { <-d.slots }()

		if err := d.executor.Execute(d.ctx, job); err != nil {
			d.logger.Error("Run failed",
				logger.String("runId", job.RunID),
				logger.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until every dispatched run has returned.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

// QueueDispatcher hands runs to cmd/worker through asynq.
type QueueDispatcher struct {
	queue queue.Queue
}

func NewQueueDispatcher(q queue.Queue) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, job *models.RunJob) error {
	return d.queue.Enqueue(ctx, job)
}
