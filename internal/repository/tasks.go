package repository

import (
	"context"
	"time"

	"github.com/blockedby/tgcrawler/internal/models"
)

// TasksRepository persists the tri-state task bookkeeping records.
type TasksRepository struct {
	store *Store
}

// NewTasksRepository creates a tasks repository.
func NewTasksRepository(store *Store) *TasksRepository {
	return &TasksRepository{store: store}
}

// Begin records a task entering IN_PROGRESS.
func (r *TasksRepository) Begin(ctx context.Context, t *models.Task) error {
	now := time.Now()
	t.Status = models.TaskStatusInProgress
	t.StartedAt = &now
	return r.store.Save(ctx, t)
}

// Succeed records a successful finish.
func (r *TasksRepository) Succeed(ctx context.Context, t *models.Task) error {
	now := time.Now()
	t.Status = models.TaskStatusSucceeded
	t.FinishedAt = &now
	return r.store.Save(ctx, t)
}

// Fail records a failed finish with the error text.
func (r *TasksRepository) Fail(ctx context.Context, t *models.Task, cause error) error {
	now := time.Now()
	t.Status = models.TaskStatusFailed
	t.FinishedAt = &now
	if cause != nil {
		text := cause.Error()
		t.StatusText = &text
	}
	return r.store.Save(ctx, t)
}
