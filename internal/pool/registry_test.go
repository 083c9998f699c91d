package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tgcrawler/internal/models"
)

func TestRegistry_WaitAnyBlocksUntilPut(t *testing.T) {
	r := NewRegistry[int]()

	done := make(chan map[string]int, 1)
	go func() {
		snap, err := r.WaitAny(context.Background())
		require.NoError(t, err)
		done <- snap
	}()

	select {
	case <-done:
		t.Fatal("WaitAny returned before any entry existed")
	case <-time.After(50 * time.Millisecond):
	}

	r.Put("a", 1)

	select {
	case snap := <-done:
		assert.Equal(t, map[string]int{"a": 1}, snap)
	case <-time.After(time.Second):
		t.Fatal("WaitAny did not wake after Put")
	}
}

func TestRegistry_WaitAnyContextCancel(t *testing.T) {
	r := NewRegistry[int]()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := r.WaitAny(ctx)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitAny did not observe cancellation")
	}
}

func TestRegistry_WaitAnyClose(t *testing.T) {
	r := NewRegistry[string]()

	errCh := make(chan error, 1)
	go func() {
		_, err := r.WaitAny(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	r.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("WaitAny did not observe Close")
	}
}

func TestRegistry_DeleteWakesWaiters(t *testing.T) {
	r := NewRegistry[int]()
	r.Put("a", 1)
	r.Delete("a")
	assert.Equal(t, 0, r.Len())

	// a waiter on the drained registry must keep blocking, not panic
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := r.WaitAny(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeSaver struct {
	saved []models.ChatPhone
}

func (f *fakeSaver) Save(_ context.Context, cp *models.ChatPhone) error {
	f.saved = append(f.saved, *cp)
	return nil
}

func TestWiredPhones_AddPersistsInsideMutation(t *testing.T) {
	saver := &fakeSaver{}
	w := NewWiredPhones(saver, nil)

	err := w.Add(context.Background(), &models.ChatPhone{ChatID: "c1", PhoneID: "p1"})
	require.NoError(t, err)

	require.Len(t, saver.saved, 1)
	assert.True(t, saver.saved[0].IsUsing)
	assert.Equal(t, []string{"p1"}, w.Using())
}

func TestWiredPhones_AddIsIdempotent(t *testing.T) {
	saver := &fakeSaver{}
	w := NewWiredPhones(saver, nil)

	cp := &models.ChatPhone{ChatID: "c1", PhoneID: "p1"}
	require.NoError(t, w.Add(context.Background(), cp))
	require.NoError(t, w.Add(context.Background(), &models.ChatPhone{ChatID: "c1", PhoneID: "p1"}))

	assert.Len(t, saver.saved, 1)
	assert.Equal(t, 1, w.CountUsing())
}

func TestWiredPhones_ReleaseKeepsRecord(t *testing.T) {
	saver := &fakeSaver{}
	w := NewWiredPhones(saver, nil)

	require.NoError(t, w.Add(context.Background(), &models.ChatPhone{ChatID: "c1", PhoneID: "p1"}))
	require.NoError(t, w.Release(context.Background(), "p1"))

	assert.Empty(t, w.Using())
	assert.True(t, w.Contains("p1"), "released phone must stay recorded")
	require.Len(t, saver.saved, 2)
	assert.False(t, saver.saved[1].IsUsing)
}
