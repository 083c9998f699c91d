package chats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockedby/tgcrawler/internal/config"
	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/pool"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/telegram"
)

// ErrPhoneFull signals that the phone hit telegram's channel-join ceiling.
// The caller should retry the join with a different phone.
var ErrPhoneFull = errors.New("phone at channel ceiling")

// ErrChatFailed signals a definitive join failure: the chat was marked
// FAILED and further phones must not be tried.
var ErrChatFailed = errors.New("chat marked failed")

// JoinSession is the slice of a telegram session the joiner needs.
type JoinSession interface {
	Join(ctx context.Context, link string) (*telegram.ChatInfo, error)
	History(ctx context.Context, chat *telegram.ChatInfo, offsetID, minID, limit int) ([]telegram.MessageInfo, error)
	Close()
}

// JoinSessionFactory opens an authorized session for a phone.
type JoinSessionFactory func(ctx context.Context, phone *models.Phone) (JoinSession, error)

// sampleSize is the number of recent messages fetched right after a join as
// a liveness signal.
const sampleSize = 3

// Joiner wires phones to chats. Unlike resolution, a join retries flood
// waits on the same phone: joining is the scarce action worth waiting for.
type Joiner struct {
	chats    *repository.ChatsRepository
	phones   *repository.PhonesRepository
	messages *repository.MessagesRepository
	factory  JoinSessionFactory
	profile  config.Profile
	log      *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewJoiner(
	chats *repository.ChatsRepository,
	phones *repository.PhonesRepository,
	messages *repository.MessagesRepository,
	provider *telegram.Provider,
	cfg *config.Config,
) *Joiner {
	return &Joiner{
		chats:    chats,
		phones:   phones,
		messages: messages,
		factory: func(ctx context.Context, phone *models.Phone) (JoinSession, error) {
			return provider.Open(ctx, phone)
		},
		profile: cfg.Profile,
		log:     logger.With("joiner"),
		sleep:   ctxSleep,
	}
}

// SetSessionFactory replaces the session factory for tests.
func (j *Joiner) SetSessionFactory(f JoinSessionFactory) { j.factory = f }

// SetSleep replaces the wait primitive.
func (j *Joiner) SetSleep(f func(ctx context.Context, d time.Duration) error) { j.sleep = f }

// Join attaches one phone to the chat and records the wiring. Joins beyond
// the per-chat ceiling are skipped outright to bound fan-out cost.
func (j *Joiner) Join(ctx context.Context, chat *models.Chat, phone *models.Phone, wired *pool.WiredPhones) error {
	if wired.CountUsing() >= j.profile.JoinCeiling {
		j.log.Debug().Str("chat", chat.ID).Int("ceiling", j.profile.JoinCeiling).Msg("joiner: ceiling reached, skipping")
		return nil
	}
	if wired.Contains(phone.ID) {
		return nil
	}

	session, err := j.factory(ctx, phone)
	if err != nil {
		return fmt.Errorf("open session for %s: %w", phone.Number, err)
	}
	defer session.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := session.Join(ctx, chat.Link)
		if err == nil {
			return j.recordJoin(ctx, session, chat, phone, info, wired)
		}

		if wait, ok := telegram.FloodWait(err); ok {
			j.log.Warn().Str("phone", phone.Number).Dur("wait", wait).Msg("joiner: flood wait, retrying same phone")
			if err := j.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		if telegram.IsChannelsFull(err) {
			j.markPhoneFull(ctx, phone, err)
			return fmt.Errorf("%w: %s", ErrPhoneFull, phone.Number)
		}

		// definitive failure is a property of the chat
		text := err.Error()
		chat.Status = models.ChatStatusFailed
		chat.StatusText = &text
		if saveErr := j.chats.Save(ctx, chat); saveErr != nil {
			return fmt.Errorf("persist failed chat: %w", saveErr)
		}
		j.log.Warn().Str("chat", chat.ID).Str("reason", text).Msg("joiner: chat failed")
		return fmt.Errorf("%w: %s", ErrChatFailed, text)
	}
}

func (j *Joiner) recordJoin(ctx context.Context, session JoinSession, chat *models.Chat, phone *models.Phone, info *telegram.ChatInfo, wired *pool.WiredPhones) error {
	if err := wired.Add(ctx, &models.ChatPhone{ChatID: chat.ID, PhoneID: phone.ID}); err != nil {
		return err
	}

	// the joined entity is fresher than whatever resolution recorded
	chat.InternalID = &info.InternalID
	if info.Title != "" {
		chat.Title = &info.Title
	}
	chat.Status = models.ChatStatusAvailable
	chat.StatusText = nil
	if info.MembersCount > 0 {
		chat.TotalMembers = &info.MembersCount
	}
	if info.MessagesCount > 0 {
		chat.TotalMessages = &info.MessagesCount
	}
	if err := j.chats.Save(ctx, chat); err != nil {
		return err
	}

	j.sampleMessages(ctx, session, chat, info)
	j.log.Info().Str("chat", chat.ID).Str("phone", phone.Number).Msg("joiner: phone wired")
	return nil
}

// sampleMessages stores a few recent messages as an immediate liveness
// signal. Failures here never fail the join.
func (j *Joiner) sampleMessages(ctx context.Context, session JoinSession, chat *models.Chat, info *telegram.ChatInfo) {
	msgs, err := session.History(ctx, info, 0, 0, sampleSize)
	if err != nil {
		j.log.Debug().Err(err).Str("chat", chat.ID).Msg("joiner: sample fetch failed")
		return
	}
	for _, m := range msgs {
		text := m.Text
		date := m.Date
		row := &models.Message{
			InternalID: int64(m.ID),
			ChatID:     chat.ID,
			Text:       &text,
			IsPinned:   m.Pinned,
			Date:       &date,
		}
		if err := j.messages.Save(ctx, row); err != nil {
			j.log.Debug().Err(err).Str("chat", chat.ID).Msg("joiner: sample save failed")
			return
		}
	}
}

func (j *Joiner) markPhoneFull(ctx context.Context, phone *models.Phone, cause error) {
	text := cause.Error()
	phone.Status = models.PhoneStatusFull
	phone.StatusText = &text
	if err := j.phones.Save(ctx, phone); err != nil {
		j.log.Error().Err(err).Str("phone", phone.Number).Msg("joiner: full status persist failed")
	}
	j.log.Warn().Str("phone", phone.Number).Msg("joiner: phone at channel ceiling")
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
