package scrape

import (
	"context"
	"time"

	"github.com/blockedby/tgcrawler/internal/config"
	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/peerdb"
	"github.com/blockedby/tgcrawler/internal/pool"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/telegram"
)

// statusPollInterval is how often the monitor re-checks the chat's status
// on the backend. MONITORING flipping off is the monitor's exit signal.
const statusPollInterval = 30 * time.Second

// Monitor consumes live updates for a chat, applying the same member and
// message handling as the batch workers, driven by push events instead of
// pagination.
type Monitor struct {
	runner   *runner
	chats    *repository.ChatsRepository
	members  *Members
	messages *Messages
	peers    *peerdb.DB
	log      *logger.Logger

	pollInterval time.Duration
}

func NewMonitor(
	phones *repository.PhonesRepository,
	chats *repository.ChatsRepository,
	members *Members,
	messages *Messages,
	peers *peerdb.DB,
	provider *telegram.Provider,
	cfg *config.Config,
) *Monitor {
	log := logger.With("scrape-monitor")
	return &Monitor{
		runner:       newRunner(phones, provider, log),
		chats:        chats,
		members:      members,
		messages:     messages,
		peers:        peers,
		log:          log,
		pollInterval: statusPollInterval,
	}
}

// Run watches the chat until its status leaves MONITORING or the context
// ends. Takeout is never used here: live updates are not a bulk export.
func (w *Monitor) Run(ctx context.Context, chat *models.Chat, wired *pool.WiredPhones) error {
	info, err := chatInfoFor(chat, lookupOrNil(w.peers))
	if err != nil {
		return err
	}
	return w.runner.pass(ctx, chat, wired, false, true, func(ctx context.Context, s Session) error {
		return w.watch(ctx, s, chat, info)
	})
}

func (w *Monitor) watch(ctx context.Context, s Session, chat *models.Chat, info *telegram.ChatInfo) error {
	w.log.Info().Str("chat", chat.ID).Msg("scrape: monitoring started")
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.Events():
			w.handleEvent(ctx, s, chat, info, ev)
		case <-ticker.C:
			if err := w.chats.Reload(ctx, chat); err != nil {
				w.log.Warn().Err(err).Str("chat", chat.ID).Msg("scrape: status reload failed")
				continue
			}
			if chat.Status != models.ChatStatusMonitoring {
				w.log.Info().Str("chat", chat.ID).Str("status", string(chat.Status)).Msg("scrape: monitoring stopped")
				return nil
			}
		}
	}
}

func (w *Monitor) handleEvent(ctx context.Context, s Session, chat *models.Chat, info *telegram.ChatInfo, ev telegram.Event) {
	if ev.PeerID != info.RawID {
		return
	}

	switch ev.Kind {
	case telegram.EventNewMessage:
		if ev.Message == nil {
			return
		}
		if err := w.messages.saveOne(ctx, s, chat, info, ev.Message); err != nil {
			w.log.Error().Err(err).Int("message", ev.Message.ID).Msg("scrape: live message save failed")
		}
	case telegram.EventUserJoined:
		now := time.Now()
		m := &telegram.MemberInfo{UserID: ev.UserID, JoinDate: &now}
		if _, err := w.members.Upsert(ctx, chat, m); err != nil {
			w.log.Error().Err(err).Int64("user", ev.UserID).Msg("scrape: live join save failed")
		}
	case telegram.EventUserLeft:
		m := &telegram.MemberInfo{UserID: ev.UserID, Left: true}
		if _, err := w.members.Upsert(ctx, chat, m); err != nil {
			w.log.Error().Err(err).Int64("user", ev.UserID).Msg("scrape: live leave save failed")
		}
	}
}
