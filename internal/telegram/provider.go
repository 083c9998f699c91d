// Package telegram wraps the gotd MTProto client into phone-scoped
// sessions. A session is a connected client bound to one phone's persisted
// session blob, with rate limiting, flood-wait accounting and optional
// takeout routing stacked as middlewares.
package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gotd/contrib/bg"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/td/session"
	tgclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"github.com/blockedby/tgcrawler/internal/config"
	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
)

// reconnectDelay is the fixed delay between reconnect attempts. Reconnects
// retry indefinitely; a dead link must not kill a long crawl.
const reconnectDelay = 5 * time.Second

// floodWaitRetries bounds the in-RPC flood-wait middleware. Past this the
// error surfaces to the scrape pass, which moves on to another phone.
const floodWaitRetries = 5

// Provider builds phone-scoped sessions.
type Provider struct {
	apiID   int
	apiHash string
	profile config.Profile
	log     *logger.Logger
}

// NewProvider creates a session provider for the parser's api credentials.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{
		apiID:   cfg.TGApiID,
		apiHash: cfg.TGApiHash,
		profile: cfg.Profile,
		log:     logger.With("telegram"),
	}
}

// Session is a connected client bound to one phone.
type Session struct {
	client  *tgclient.Client
	api     *tg.Client
	storage *session.StorageMemory
	stop    bg.StopFunc
	self    *tg.User
	takeout *takeoutMiddleware
	events  chan Event
	log     *logger.Logger
}

type openConfig struct {
	eventBuffer int
	floodWait   bool
}

// OpenOption tunes session construction.
type OpenOption func(*openConfig)

// WithEvents arranges for live updates to be delivered on Session.Events.
// Only monitoring workers need this.
func WithEvents(buffer int) OpenOption {
	return func(c *openConfig) { c.eventBuffer = buffer }
}

// WithFloodWait stacks a bounded flood-wait waiter under the rate limiter.
// Only scrape sessions use it: authorization, resolution and join each carry
// their own flood policy and need the raw FLOOD_WAIT error surfaced.
func WithFloodWait() OpenOption {
	return func(c *openConfig) { c.floodWait = true }
}

// Open produces a connected, authorized session for a phone, or fails with
// ErrUnauthorized when the stored session blob is missing or dead. Callers
// must interpret ErrUnauthorized as "try another phone".
func (p *Provider) Open(ctx context.Context, phone *models.Phone, opts ...OpenOption) (*Session, error) {
	if phone.Session == nil || *phone.Session == "" {
		return nil, ErrUnauthorized
	}

	s, err := p.connect(ctx, phone, opts...)
	if err != nil {
		return nil, err
	}

	ok, err := s.Authorized(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if !ok {
		s.Close()
		return nil, ErrUnauthorized
	}

	self, err := s.client.Self(ctx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("get self: %w", err)
	}
	s.self = self

	p.log.Debug().Str("phone", phone.Number).Int64("user_id", self.ID).Msg("telegram: session opened")
	return s, nil
}

// OpenForAuth produces a connected session without requiring authorization.
// The phone state machine drives the code flow over it. An empty session
// blob starts a fresh session.
func (p *Provider) OpenForAuth(ctx context.Context, phone *models.Phone) (*Session, error) {
	return p.connect(ctx, phone)
}

func (p *Provider) connect(ctx context.Context, phone *models.Phone, opts ...OpenOption) (*Session, error) {
	var oc openConfig
	for _, opt := range opts {
		opt(&oc)
	}

	storage := &session.StorageMemory{}
	if phone.Session != nil && *phone.Session != "" {
		if err := storage.StoreSession(ctx, []byte(*phone.Session)); err != nil {
			return nil, fmt.Errorf("load session blob: %w", err)
		}
	}

	takeout := &takeoutMiddleware{}
	limiter := NewRateLimiter(p.profile.RateLimit, p.profile.RateBurst)

	s := &Session{
		storage: storage,
		takeout: takeout,
		log:     p.log,
	}
	if oc.eventBuffer > 0 {
		s.events = make(chan Event, oc.eventBuffer)
	}

	options := tgclient.Options{
		SessionStorage: storage,
		Middlewares:    sessionMiddlewares(&oc, limiter, takeout),
		ReconnectionBackoff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(reconnectDelay)
		},
	}
	if s.events != nil {
		options.UpdateHandler = tgclient.UpdateHandlerFunc(s.handleUpdates)
	}

	client := tgclient.NewClient(p.apiID, p.apiHash, options)
	stop, err := bg.Connect(client, bg.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s.client = client
	s.api = client.API()
	s.stop = stop
	return s, nil
}

// sessionMiddlewares assembles the RPC middleware chain. The flood waiter is
// opt-in and sits first so the rate limiter also paces its retries.
func sessionMiddlewares(oc *openConfig, limiter *RateLimiter, takeout *takeoutMiddleware) []tgclient.Middleware {
	mw := []tgclient.Middleware{limiter, takeout}
	if oc.floodWait {
		mw = append([]tgclient.Middleware{
			floodwait.NewSimpleWaiter().WithMaxRetries(floodWaitRetries),
		}, mw...)
	}
	return mw
}

// Self returns the authorized user, nil for auth-only sessions.
func (s *Session) Self() *tg.User { return s.self }

// API exposes the raw RPC client.
func (s *Session) API() *tg.Client { return s.api }

// Events returns the live update channel, nil unless opened WithEvents.
func (s *Session) Events() <-chan Event { return s.events }

// SessionBytes dumps the current session blob for persistence. The blob
// changes when telegram rotates the auth key, so it is re-persisted after
// every successful authorization.
func (s *Session) SessionBytes() ([]byte, error) {
	data, err := s.storage.Bytes(nil)
	if err != nil {
		return nil, fmt.Errorf("dump session: %w", err)
	}
	return data, nil
}

// Close disconnects the client. Safe to call more than once.
func (s *Session) Close() {
	if s.stop != nil {
		if err := s.stop(); err != nil {
			s.log.Debug().Err(err).Msg("telegram: session stop")
		}
		s.stop = nil
	}
}

// handleUpdates feeds live updates into the events channel. Channels and
// basic groups deliver through different update types, both are mapped to
// the same Event shape.
func (s *Session) handleUpdates(ctx context.Context, u tg.UpdatesClass) error {
	var updates []tg.UpdateClass
	switch v := u.(type) {
	case *tg.Updates:
		updates = v.Updates
	case *tg.UpdatesCombined:
		updates = v.Updates
	case *tg.UpdateShortChatMessage:
		// basic groups often deliver a short update with the payload inline
		msg := &tg.Message{
			ID:      v.ID,
			Date:    v.Date,
			Message: v.Message,
			PeerID:  &tg.PeerChat{ChatID: v.ChatID},
			FromID:  &tg.PeerUser{UserID: v.FromID},
		}
		if fwd, ok := v.GetFwdFrom(); ok {
			msg.SetFwdFrom(fwd)
		}
		if reply, ok := v.GetReplyTo(); ok {
			msg.SetReplyTo(reply)
		}
		info := parseMessage(msg)
		s.emit(Event{Kind: EventNewMessage, PeerID: v.ChatID, Message: &info})
		return nil
	default:
		return nil
	}

	for _, upd := range updates {
		switch v := upd.(type) {
		case *tg.UpdateNewChannelMessage:
			msg, ok := v.Message.(*tg.Message)
			if !ok {
				continue
			}
			peer, ok := msg.PeerID.(*tg.PeerChannel)
			if !ok {
				continue
			}
			info := parseMessage(msg)
			s.emit(Event{Kind: EventNewMessage, PeerID: peer.ChannelID, Message: &info})
		case *tg.UpdateNewMessage:
			msg, ok := v.Message.(*tg.Message)
			if !ok {
				continue
			}
			peer, ok := msg.PeerID.(*tg.PeerChat)
			if !ok {
				continue
			}
			info := parseMessage(msg)
			s.emit(Event{Kind: EventNewMessage, PeerID: peer.ChatID, Message: &info})
		case *tg.UpdateChannelParticipant:
			kind := EventUserJoined
			if _, ok := v.GetNewParticipant(); !ok {
				kind = EventUserLeft
			}
			s.emit(Event{Kind: kind, PeerID: v.ChannelID, UserID: v.UserID})
		case *tg.UpdateChatParticipant:
			kind := EventUserJoined
			if _, ok := v.GetNewParticipant(); !ok {
				kind = EventUserLeft
			}
			s.emit(Event{Kind: kind, PeerID: v.ChatID, UserID: v.UserID})
		case *tg.UpdateChatParticipantAdd:
			s.emit(Event{Kind: EventUserJoined, PeerID: v.ChatID, UserID: v.UserID})
		case *tg.UpdateChatParticipantDelete:
			s.emit(Event{Kind: EventUserLeft, PeerID: v.ChatID, UserID: v.UserID})
		}
	}
	return nil
}

// emit drops the event when the monitor falls behind. Monitoring is
// best-effort, the batch workers backfill anything missed.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Str("kind", string(ev.Kind)).Msg("telegram: event dropped, monitor behind")
	}
}
