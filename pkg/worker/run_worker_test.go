package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
	"github.com/arena2036/vec-aas-uploader/pkg/queue"
)

type stubExecutor struct {
	jobs []*models.RunJob
	err  error
}

func (s *stubExecutor) Execute(ctx context.Context, job *models.RunJob) error {
	s.jobs = append(s.jobs, job)
	return s.err
}

func newWorker(exec RunExecutor) *RunWorker {
	return NewRunWorker(&Config{
		RedisOpt:    asynq.RedisClientOpt{Addr: "localhost:0"},
		Concurrency: 1,
	}, exec, logger.NewNopLogger())
}

func TestHandleRun(t *testing.T) {
	exec := &stubExecutor{}
	w := newWorker(exec)

	job := &models.RunJob{RunID: "r", SessionID: "s", Generation: 1, FileKey: "k"}
	task, err := queue.NewRunTask(job, 0)
	require.NoError(t, err)

	require.NoError(t, w.HandleRun(context.Background(), task))
	require.Len(t, exec.jobs, 1)
	assert.Equal(t, "r", exec.jobs[0].RunID)
}

func TestHandleRunMalformedPayloadSkipsRetry(t *testing.T) {
	exec := &stubExecutor{}
	w := newWorker(exec)

	err := w.HandleRun(context.Background(), asynq.NewTask(queue.TaskTypeUploadRun, []byte(`{}`)))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, exec.jobs)
}

func TestHandleRunExecutorError(t *testing.T) {
	exec := &stubExecutor{err: errors.New("redis gone")}
	w := newWorker(exec)

	task, err := queue.NewRunTask(&models.RunJob{RunID: "r", SessionID: "s", Generation: 1, FileKey: "k"}, 0)
	require.NoError(t, err)

	err = w.HandleRun(context.Background(), task)
	assert.ErrorIs(t, err, exec.err)
}
