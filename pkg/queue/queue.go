package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/arena2036/vec-aas-uploader/internal/models"
)

// TaskType 定义任务类型
const (
	TaskTypeUploadRun = "upload:run"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// Queue hands workflow runs to out-of-process workers.
type Queue interface {
	Enqueue(ctx context.Context, job *models.RunJob) error
	Close() error
}

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisOpt       asynq.RedisClientOpt
	ProcessTimeout time.Duration
	// Retention keeps finished tasks inspectable.
	Retention time.Duration
}

// AsynqQueue 实现
type AsynqQueue struct {
	client *asynq.Client
	cfg    QueueConfig
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg QueueConfig) *AsynqQueue {
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 5 * time.Minute
	}
	return &AsynqQueue{
		client: asynq.NewClient(cfg.RedisOpt),
		cfg:    cfg,
	}
}

// NewRunTask wraps a job into an asynq task. Runs are never retried: a retry
// would replay updates of a generation the user may already have moved past.
func NewRunTask(job *models.RunJob, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return asynq.NewTask(TaskTypeUploadRun, payload,
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.TaskID(job.RunID),
		asynq.Queue(QueueCritical),
	), nil
}

// ParseRunJob decodes and checks the payload of an upload:run task.
func ParseRunJob(payload []byte) (*models.RunJob, error) {
	var job models.RunJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if job.RunID == "" || job.SessionID == "" || job.FileKey == "" || job.Generation == 0 {
		return nil, errors.New("invalid task data: missing required fields")
	}
	return &job, nil
}

// Enqueue 将任务加入队列
func (q *AsynqQueue) Enqueue(ctx context.Context, job *models.RunJob) error {
	t, err := NewRunTask(job, q.cfg.ProcessTimeout)
	if err != nil {
		return err
	}

	opts := []asynq.Option{}
	if q.cfg.Retention > 0 {
		opts = append(opts, asynq.Retention(q.cfg.Retention))
	}

	if _, err := q.client.EnqueueContext(ctx, t, opts...); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	return q.client.Close()
}
