package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/repository/repotest"
)

type fakePublisher struct {
	published []struct {
		subject string
		env     Envelope
	}
	err error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data any) error {
	if f.err != nil {
		return f.err
	}
	env, ok := data.(Envelope)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", data)
	}
	f.published = append(f.published, struct {
		subject string
		env     Envelope
	}{subject, env})
	return nil
}

func newDispatcherFixture() (*Dispatcher, *repotest.Backend) {
	backend := repotest.New()
	tasks := repository.NewTasksRepository(repository.NewStore(backend))
	return NewDispatcher(tasks), backend
}

func envelope(t *testing.T, env Envelope) []byte {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func taskRows(t *testing.T, backend *repotest.Backend) []*models.Task {
	t.Helper()
	rows, err := backend.List(context.Background(), "telegram/tasks", nil)
	require.NoError(t, err)
	out := make([]*models.Task, 0, len(rows))
	for _, row := range rows {
		task := &models.Task{}
		require.NoError(t, task.Deserialize(row))
		out = append(out, task)
	}
	return out
}

func TestDispatchSuccessRecordsLifecycle(t *testing.T) {
	d, backend := newDispatcherFixture()

	var got Envelope
	d.Register(TypeResolve, func(_ context.Context, env Envelope) error {
		got = env
		return nil
	})

	err := d.Dispatch(context.Background(), envelope(t, Envelope{ID: "e1", Type: TypeResolve, ChatID: "c1"}))
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ChatID)

	rows := taskRows(t, backend)
	require.Len(t, rows, 1)
	assert.Equal(t, models.TaskStatusSucceeded, rows[0].Status)
	assert.Equal(t, string(TypeResolve), rows[0].Type)
	require.NotNil(t, rows[0].ChatID)
	assert.Equal(t, "c1", *rows[0].ChatID)
	assert.NotNil(t, rows[0].StartedAt)
	assert.NotNil(t, rows[0].FinishedAt)
}

func TestDispatchTransientFailureIsRedelivered(t *testing.T) {
	d, backend := newDispatcherFixture()

	d.Register(TypeAuthorize, func(_ context.Context, _ Envelope) error {
		return fmt.Errorf("%w: backend down", ErrRetryLater)
	})

	err := d.Dispatch(context.Background(), envelope(t, Envelope{ID: "e1", Type: TypeAuthorize, PhoneID: "p1"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryLater)

	rows := taskRows(t, backend)
	require.Len(t, rows, 1)
	assert.Equal(t, models.TaskStatusFailed, rows[0].Status)
	require.NotNil(t, rows[0].StatusText)
	assert.Contains(t, *rows[0].StatusText, "backend down")
}

func TestDispatchHardFailureIsConsumed(t *testing.T) {
	d, backend := newDispatcherFixture()

	d.Register(TypeJoin, func(_ context.Context, _ Envelope) error {
		return errors.New("chat is gone")
	})

	err := d.Dispatch(context.Background(), envelope(t, Envelope{ID: "e1", Type: TypeJoin, ChatID: "c1"}))
	require.NoError(t, err)

	rows := taskRows(t, backend)
	require.Len(t, rows, 1)
	assert.Equal(t, models.TaskStatusFailed, rows[0].Status)
	require.NotNil(t, rows[0].StatusText)
	assert.Contains(t, *rows[0].StatusText, "chat is gone")
}

func TestDispatchUnknownTypeIsDropped(t *testing.T) {
	d, backend := newDispatcherFixture()

	err := d.Dispatch(context.Background(), envelope(t, Envelope{ID: "e1", Type: "chat.explode"}))
	require.NoError(t, err)
	assert.Zero(t, backend.Count("telegram/tasks"))
}

func TestDispatchUndecodableIsDropped(t *testing.T) {
	d, backend := newDispatcherFixture()

	err := d.Dispatch(context.Background(), []byte("{not json"))
	require.NoError(t, err)
	assert.Zero(t, backend.Count("telegram/tasks"))
}

func TestQueueAssignsIDAndRoutesSubjects(t *testing.T) {
	pub := &fakePublisher{}
	q := NewQueue(pub, "tasks.high", "tasks.low")

	require.NoError(t, q.EnqueueHigh(context.Background(), Envelope{Type: TypeResolve, ChatID: "c1"}))
	require.NoError(t, q.EnqueueLow(context.Background(), Envelope{ID: "fixed", Type: TypeMessages, ChatID: "c1"}))

	require.Len(t, pub.published, 2)
	assert.Equal(t, "tasks.high", pub.published[0].subject)
	assert.NotEmpty(t, pub.published[0].env.ID)
	assert.Equal(t, "tasks.low", pub.published[1].subject)
	assert.Equal(t, "fixed", pub.published[1].env.ID)
}
