package cli

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilityhub/backoffice/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault, Type: task.Type()}, nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestSendTestEmail(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq}

	info, err := c.SendTestEmail(context.Background(), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskTypeSendEmail, info.Type)
	require.Len(t, enq.tasks, 1)

	var payload jobs.SendEmailPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, "ops@example.com", payload.To)

	_, err = c.SendTestEmail(context.Background(), "nobody")
	assert.Error(t, err)
	assert.Len(t, enq.tasks, 1)
}

func TestInspectQueue(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 4, Retry: 1}}}
	stats, err := c.InspectQueue()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Pending)
	assert.Equal(t, 1, stats.Retry)
	assert.Contains(t, stats.String(), "pending=4")

	c = &JobsCLI{inspector: stubInspector{err: errors.New("dial tcp")}}
	_, err = c.InspectQueue()
	assert.Error(t, err)

	_, err = (&JobsCLI{}).InspectQueue()
	assert.Error(t, err)
}
