package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arena2036/vec-aas-uploader/internal/models"
)

func sampleJob() *models.RunJob {
	return &models.RunJob{
		RunID:            "run-1",
		SessionID:        "session-1",
		Generation:       3,
		FileKey:          "uploads/run-1/harness.vec",
		File:             models.FileInfo{Filename: "harness.vec", Size: 12},
		UserName:         "Jane",
		OrganizationName: "Acme",
		CreatedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRunTaskRoundTrip(t *testing.T) {
	task, err := NewRunTask(sampleJob(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeUploadRun, task.Type())

	job, err := ParseRunJob(task.Payload())
	require.NoError(t, err)
	assert.Equal(t, sampleJob(), job)
}

func TestParseRunJobRejectsIncomplete(t *testing.T) {
	_, err := ParseRunJob([]byte(`{"runId":"r"}`))
	assert.Error(t, err)

	_, err = ParseRunJob([]byte(`not json`))
	assert.Error(t, err)
}

func TestEnqueue(t *testing.T) {
	mr := miniredis.RunT(t)
	opt := asynq.RedisClientOpt{Addr: mr.Addr()}

	q := NewAsynqQueue(QueueConfig{RedisOpt: opt, ProcessTimeout: time.Minute})
	t.Cleanup(func() { q.Close() })

	require.NoError(t, q.Enqueue(context.Background(), sampleJob()))

	inspector := asynq.NewInspector(opt)
	t.Cleanup(func() { inspector.Close() })

	info, err := inspector.GetTaskInfo(QueueCritical, "run-1")
	require.NoError(t, err)
	assert.Equal(t, TaskTypeUploadRun, info.Type)
	assert.Equal(t, 0, info.MaxRetry)

	// the run id doubles as the task id, so a job is queued once
	assert.Error(t, q.Enqueue(context.Background(), sampleJob()))
}
