// Package chats acquires telegram chats for crawling: resolving a link to a
// live entity with whatever READY phone works, then wiring a bounded number
// of phones to the chat as scraping credentials.
package chats

import (
	"context"
	"errors"
	"time"

	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/peerdb"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/telegram"
)

// ErrNoPhones signals that every candidate phone was tried and none could
// complete the operation. It is an operational problem (no usable phones),
// distinct from a FAILED chat (the chat itself is bad).
var ErrNoPhones = errors.New("no available phones")

// Session is the slice of a telegram session the resolver needs.
type Session interface {
	Resolve(ctx context.Context, link string) (*telegram.ChatInfo, error)
	Close()
}

// SessionFactory opens an authorized session for a phone, failing with
// telegram.ErrUnauthorized for dead sessions.
type SessionFactory func(ctx context.Context, phone *models.Phone) (Session, error)

// Resolver resolves chat links to live telegram entities.
type Resolver struct {
	chats   *repository.ChatsRepository
	peers   *peerdb.DB
	factory SessionFactory
	log     *logger.Logger
}

func NewResolver(chats *repository.ChatsRepository, peers *peerdb.DB, provider *telegram.Provider) *Resolver {
	return &Resolver{
		chats: chats,
		peers: peers,
		factory: func(ctx context.Context, phone *models.Phone) (Session, error) {
			return provider.Open(ctx, phone)
		},
		log: logger.With("resolver"),
	}
}

// SetSessionFactory replaces the session factory for tests.
func (r *Resolver) SetSessionFactory(f SessionFactory) { r.factory = f }

// Resolve tries each candidate phone in order until one resolves the chat.
// A flooded phone is skipped immediately rather than waited on, since
// another candidate may succeed right away. A definitive protocol error
// marks the chat FAILED and stops the loop: no phone will ever resolve a
// dead link.
func (r *Resolver) Resolve(ctx context.Context, chat *models.Chat, candidates []*models.Phone) error {
	for _, phone := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := r.resolveWith(ctx, phone, chat.Link)
		switch {
		case err == nil:
			return r.recordResolved(ctx, chat, info)
		case errors.Is(err, telegram.ErrUnauthorized):
			r.log.Warn().Str("phone", phone.Number).Str("link", chat.Link).Msg("resolver: session unauthorized, next phone")
			continue
		case telegram.IsChatUnavailable(err):
			return r.markFailed(ctx, chat, err)
		default:
			if wait, ok := telegram.FloodWait(err); ok {
				r.log.Warn().Str("phone", phone.Number).Dur("wait", wait).Msg("resolver: flood wait, next phone")
				continue
			}
			r.log.Error().Err(err).Str("phone", phone.Number).Str("link", chat.Link).Msg("resolver: attempt failed, next phone")
			continue
		}
	}
	return ErrNoPhones
}

func (r *Resolver) resolveWith(ctx context.Context, phone *models.Phone, link string) (*telegram.ChatInfo, error) {
	session, err := r.factory(ctx, phone)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	return session.Resolve(ctx, link)
}

func (r *Resolver) recordResolved(ctx context.Context, chat *models.Chat, info *telegram.ChatInfo) error {
	if !info.Joined {
		// bare invite: the chat exists but has no id until a phone joins
		text := "available but requires join"
		chat.Status = models.ChatStatusAvailable
		chat.StatusText = &text
		if info.Title != "" {
			chat.Title = &info.Title
		}
		if info.MembersCount > 0 {
			chat.TotalMembers = &info.MembersCount
		}
		return r.chats.Save(ctx, chat)
	}

	chat.InternalID = &info.InternalID
	chat.Title = &info.Title
	chat.Status = models.ChatStatusAvailable
	chat.StatusText = nil
	chat.TotalMembers = &info.MembersCount
	chat.TotalMessages = &info.MessagesCount
	if err := r.chats.Save(ctx, chat); err != nil {
		return err
	}

	if info.Photo != nil {
		now := time.Now()
		media := &models.ChatMedia{ChatID: chat.ID, InternalID: info.Photo.PhotoID, Date: &now}
		if err := r.chats.SaveMedia(ctx, media); err != nil {
			r.log.Error().Err(err).Str("chat", chat.ID).Msg("resolver: photo record save failed")
		}
	}
	if r.peers != nil {
		if err := r.peers.RememberChat(info); err != nil {
			r.log.Warn().Err(err).Int64("peer", info.InternalID).Msg("resolver: peer cache update failed")
		}
	}

	r.log.Info().Str("link", chat.Link).Int64("internal_id", info.InternalID).Msg("resolver: chat resolved")
	return nil
}

func (r *Resolver) markFailed(ctx context.Context, chat *models.Chat, cause error) error {
	text := cause.Error()
	chat.Status = models.ChatStatusFailed
	chat.StatusText = &text
	r.log.Warn().Str("link", chat.Link).Str("reason", text).Msg("resolver: chat failed")
	return r.chats.Save(ctx, chat)
}
