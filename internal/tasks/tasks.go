// Package tasks is the queue layer: crawl operations travel as envelopes
// over jetstream, and every execution is wrapped in a persisted tri-state
// Task record (CREATED, IN_PROGRESS, then SUCCEEDED or FAILED).
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/repository"
)

// Type names one crawl operation.
type Type string

const (
	TypeAuthorize Type = "phone.authorize"
	TypeResolve   Type = "chat.resolve"
	TypeJoin      Type = "chat.join"
	TypeMembers   Type = "chat.members"
	TypeMessages  Type = "chat.messages"
	TypeMonitor   Type = "chat.monitor"
)

// StreamName is the jetstream stream holding both priority subjects.
const StreamName = "TASKS"

// ErrRetryLater marks a transient failure: the message is negatively
// acknowledged and redelivered instead of recorded as FAILED.
var ErrRetryLater = errors.New("retry later")

// Envelope is one queued unit of work.
type Envelope struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	PhoneID string `json:"phoneId,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
}

// Handler executes one task type.
type Handler func(ctx context.Context, env Envelope) error

// Publisher enqueues envelopes.
type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
}

// Queue publishes envelopes to the priority subjects.
type Queue struct {
	pub  Publisher
	high string
	low  string
	log  *logger.Logger
}

func NewQueue(pub Publisher, highSubject, lowSubject string) *Queue {
	return &Queue{pub: pub, high: highSubject, low: lowSubject, log: logger.With("tasks")}
}

// EnqueueHigh queues interactive work: authorization, resolution, joins.
func (q *Queue) EnqueueHigh(ctx context.Context, env Envelope) error {
	return q.enqueue(ctx, q.high, env)
}

// EnqueueLow queues bulk work: member and message passes, monitoring.
func (q *Queue) EnqueueLow(ctx context.Context, env Envelope) error {
	return q.enqueue(ctx, q.low, env)
}

func (q *Queue) enqueue(ctx context.Context, subject string, env Envelope) error {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if err := q.pub.Publish(ctx, subject, env); err != nil {
		return fmt.Errorf("enqueue %s: %w", env.Type, err)
	}
	q.log.Debug().Str("task", env.ID).Str("type", string(env.Type)).Str("subject", subject).Msg("tasks: enqueued")
	return nil
}

// Dispatcher decodes envelopes and runs the registered handler inside the
// task lifecycle bookkeeping.
type Dispatcher struct {
	tasks    *repository.TasksRepository
	handlers map[Type]Handler
	log      *logger.Logger
}

func NewDispatcher(tasks *repository.TasksRepository) *Dispatcher {
	return &Dispatcher{
		tasks:    tasks,
		handlers: make(map[Type]Handler),
		log:      logger.With("dispatcher"),
	}
}

// Register binds a handler to a task type.
func (d *Dispatcher) Register(t Type, h Handler) { d.handlers[t] = h }

// Dispatch runs one delivered payload. A transient failure returns non-nil
// so the queue redelivers; a hard failure is recorded FAILED and consumed.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		d.log.Error().Err(err).Msg("dispatcher: undecodable envelope dropped")
		return nil
	}

	handler, ok := d.handlers[env.Type]
	if !ok {
		d.log.Error().Str("type", string(env.Type)).Msg("dispatcher: no handler, dropped")
		return nil
	}

	record := &models.Task{Type: string(env.Type)}
	if env.PhoneID != "" {
		record.PhoneID = &env.PhoneID
	}
	if env.ChatID != "" {
		record.ChatID = &env.ChatID
	}
	if err := d.tasks.Begin(ctx, record); err != nil {
		// without bookkeeping the work must not run; let the queue retry
		return fmt.Errorf("begin task record: %w", err)
	}

	err := handler(ctx, env)
	switch {
	case err == nil:
		if err := d.tasks.Succeed(ctx, record); err != nil {
			d.log.Error().Err(err).Str("task", env.ID).Msg("dispatcher: success record failed")
		}
		return nil
	case errors.Is(err, ErrRetryLater):
		d.log.Warn().Err(err).Str("task", env.ID).Str("type", string(env.Type)).Msg("dispatcher: transient failure, requeued")
		text := err.Error()
		record.StatusText = &text
		if err := d.tasks.Fail(ctx, record, err); err != nil {
			d.log.Error().Err(err).Str("task", env.ID).Msg("dispatcher: failure record failed")
		}
		return err
	default:
		d.log.Error().Err(err).Str("task", env.ID).Str("type", string(env.Type)).Msg("dispatcher: task failed")
		if err := d.tasks.Fail(ctx, record, err); err != nil {
			d.log.Error().Err(err).Str("task", env.ID).Msg("dispatcher: failure record failed")
		}
		return nil
	}
}
