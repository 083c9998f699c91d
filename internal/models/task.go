package models

import "time"

// TaskStatus is the tri-state bookkeeping wrapped around every long-running
// phone or chat operation.
type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusSucceeded  TaskStatus = "SUCCEEDED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// Task is the persisted status record correlated with one queued unit of
// work. PhoneID/ChatID are set depending on the task type.
type Task struct {
	ID         string
	Type       string
	Status     TaskStatus
	StatusText *string
	PhoneID    *string
	ChatID     *string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

func (t *Task) TypeName() string      { return "telegram/tasks" }
func (t *Task) Identity() string      { return t.ID }
func (t *Task) SetIdentity(id string) { t.ID = id }

func (t *Task) Serialize() map[string]any {
	body := map[string]any{
		"type":       t.Type,
		"status":     string(t.Status),
		"statusText": t.StatusText,
		"phone":      t.PhoneID,
		"chat":       t.ChatID,
	}
	putTime(body, "startedAt", t.StartedAt)
	putTime(body, "finishedAt", t.FinishedAt)
	return body
}

func (t *Task) Deserialize(data map[string]any) error {
	t.ID = asString(data, "id")
	t.Type = asString(data, "type")
	t.Status = TaskStatus(asString(data, "status"))
	if t.Status == "" {
		t.Status = TaskStatusCreated
	}
	t.StatusText = asStringPtr(data, "statusText")
	t.PhoneID = asStringPtr(data, "phone")
	t.ChatID = asStringPtr(data, "chat")
	t.StartedAt = asTimePtr(data, "startedAt")
	t.FinishedAt = asTimePtr(data, "finishedAt")
	return nil
}

// Tasks have no natural key; duplicates are impossible by construction.
func (t *Task) UniqueConstraint() map[string]string { return nil }
