// Package scrape implements the three crawl passes over a wired chat:
// members enumeration, message history backfill, and live monitoring. All
// three iterate the chat's wired phones until one completes a full pass.
package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/peerdb"
	"github.com/blockedby/tgcrawler/internal/pool"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/telegram"
)

// peerLookup is the slice of the peer cache the workers need.
type peerLookup interface {
	Lookup(signedID int64) (*peerdb.Peer, error)
}

// lookupOrNil keeps an absent cache an untyped nil behind the interface.
func lookupOrNil(d *peerdb.DB) peerLookup {
	if d == nil {
		return nil
	}
	return d
}

// ErrNoPhones signals that no wired phone could complete the pass. Surfaced
// to the task layer so the pass is retried later rather than silently lost.
var ErrNoPhones = errors.New("no available phones, retry later")

// Session is the slice of a telegram session the scrape workers need.
type Session interface {
	Participants(ctx context.Context, chat *telegram.ChatInfo, q string, offset, limit int) ([]telegram.MemberInfo, int, error)
	History(ctx context.Context, chat *telegram.ChatInfo, offsetID, minID, limit int) ([]telegram.MessageInfo, error)
	Replies(ctx context.Context, chat *telegram.ChatInfo, msgID, offsetID, limit int) ([]telegram.MessageInfo, error)
	ResolveUser(ctx context.Context, username string) (*telegram.MemberInfo, error)
	Resolve(ctx context.Context, link string) (*telegram.ChatInfo, error)
	DownloadProfilePhoto(ctx context.Context, ref *telegram.PhotoRef) ([]byte, error)
	DownloadMedia(ctx context.Context, ref *telegram.MediaRef) ([]byte, error)
	EnterTakeout(ctx context.Context) error
	LeaveTakeout(ctx context.Context) error
	Events() <-chan telegram.Event
	Close()
}

// SessionFactory opens an authorized session for a phone. withEvents is set
// only by the monitor, which consumes live updates.
type SessionFactory func(ctx context.Context, phone *models.Phone, withEvents bool) (Session, error)

// runner owns the phone-iteration discipline shared by all scrape passes.
type runner struct {
	phones  *repository.PhonesRepository
	factory SessionFactory
	log     *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func newRunner(phones *repository.PhonesRepository, provider *telegram.Provider, log *logger.Logger) *runner {
	return &runner{
		phones: phones,
		factory: func(ctx context.Context, phone *models.Phone, withEvents bool) (Session, error) {
			if withEvents {
				return provider.Open(ctx, phone, telegram.WithFloodWait(), telegram.WithEvents(64))
			}
			return provider.Open(ctx, phone, telegram.WithFloodWait())
		},
		log:   log,
		sleep: ctxSleep,
	}
}

// pass runs fn over the chat's wired phones until one completes it. A phone
// whose session turns out unauthorized has its wiring released and the loop
// moves on; one success ends the pass, further phones are not tried.
func (r *runner) pass(ctx context.Context, chat *models.Chat, wired *pool.WiredPhones, useTakeout, withEvents bool, fn func(ctx context.Context, s Session) error) error {
	for _, phoneID := range wired.Using() {
		if err := ctx.Err(); err != nil {
			return err
		}

		phone, err := r.phones.GetByID(ctx, phoneID)
		if err != nil {
			r.log.Error().Err(err).Str("phone", phoneID).Msg("scrape: phone load failed")
			continue
		}

		session, err := r.factory(ctx, phone, withEvents)
		if err != nil {
			if errors.Is(err, telegram.ErrUnauthorized) {
				r.release(ctx, chat, wired, phoneID)
				continue
			}
			r.log.Error().Err(err).Str("phone", phone.Number).Msg("scrape: session open failed")
			continue
		}

		ok, err := r.passWith(ctx, session, phone, useTakeout, fn)
		session.Close()
		if err != nil {
			if errors.Is(err, telegram.ErrUnauthorized) {
				r.release(ctx, chat, wired, phoneID)
				continue
			}
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrNoPhones
}

// passWith runs one phone's attempt, wrapped in a takeout session when the
// phone supports it. Returns ok=false to fall through to the next phone.
func (r *runner) passWith(ctx context.Context, session Session, phone *models.Phone, useTakeout bool, fn func(ctx context.Context, s Session) error) (bool, error) {
	takeout := useTakeout && phone.Takeout
	if takeout {
		entered, err := r.enterTakeout(ctx, session, phone)
		if err != nil {
			return false, err
		}
		if !entered {
			return false, nil
		}
		defer func() {
			if err := session.LeaveTakeout(ctx); err != nil {
				r.log.Debug().Err(err).Str("phone", phone.Number).Msg("scrape: takeout finish failed")
			}
		}()
	}

	if err := fn(ctx, session); err != nil {
		if telegram.IsTakeoutInvalid(err) {
			r.log.Warn().Str("phone", phone.Number).Msg("scrape: takeout died mid-pass, next phone")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// enterTakeout arms the takeout wrapper, sleeping through init delays. A
// dead takeout slot abandons takeout for this phone.
func (r *runner) enterTakeout(ctx context.Context, session Session, phone *models.Phone) (bool, error) {
	for {
		err := session.EnterTakeout(ctx)
		if err == nil {
			return true, nil
		}
		if delay, ok := telegram.TakeoutInitDelay(err); ok {
			r.log.Warn().Str("phone", phone.Number).Dur("delay", delay).Msg("scrape: takeout init delayed")
			if err := r.sleep(ctx, delay); err != nil {
				return false, err
			}
			continue
		}
		if telegram.IsTakeoutInvalid(err) {
			r.log.Warn().Str("phone", phone.Number).Msg("scrape: takeout rejected, next phone")
			return false, nil
		}
		return false, err
	}
}

func (r *runner) release(ctx context.Context, chat *models.Chat, wired *pool.WiredPhones, phoneID string) {
	r.log.Warn().Str("chat", chat.ID).Str("phone", phoneID).Msg("scrape: session unauthorized, releasing wiring")
	if err := wired.Release(ctx, phoneID); err != nil {
		r.log.Error().Err(err).Str("phone", phoneID).Msg("scrape: wiring release failed")
	}
}

// chatInfoFor rebuilds the RPC addressing info from a persisted chat row.
func chatInfoFor(chat *models.Chat, peers peerLookup) (*telegram.ChatInfo, error) {
	if chat.InternalID == nil {
		return nil, errors.New("chat has no internal id, resolve it first")
	}
	kind, raw := telegram.RawID(*chat.InternalID)
	info := &telegram.ChatInfo{InternalID: *chat.InternalID, RawID: raw, Kind: kind, Joined: true}
	if peers != nil {
		peer, err := peers.Lookup(*chat.InternalID)
		if err == nil && peer != nil {
			info.AccessHash = peer.AccessHash
		}
	}
	return info, nil
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
