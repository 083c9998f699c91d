package scrape

import (
	"context"
	"fmt"

	"github.com/blockedby/tgcrawler/internal/config"
	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/peerdb"
	"github.com/blockedby/tgcrawler/internal/pool"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/telegram"
)

const historyPageSize = 100

// Messages backfills a chat's message history. Each run resumes from the
// highest message id already stored, so older-than-checkpoint messages are
// never re-fetched.
type Messages struct {
	runner   *runner
	messages *repository.MessagesRepository
	members  *repository.MembersRepository
	chats    *repository.ChatsRepository
	peers    *peerdb.DB
	uploader *Uploader
	log      *logger.Logger
}

func NewMessages(
	phones *repository.PhonesRepository,
	messages *repository.MessagesRepository,
	members *repository.MembersRepository,
	chats *repository.ChatsRepository,
	peers *peerdb.DB,
	uploader *Uploader,
	provider *telegram.Provider,
	cfg *config.Config,
) *Messages {
	log := logger.With("scrape-messages")
	return &Messages{
		runner:   newRunner(phones, provider, log),
		messages: messages,
		members:  members,
		chats:    chats,
		peers:    peers,
		uploader: uploader,
		log:      log,
	}
}

// Run performs one history backfill pass over the chat.
func (w *Messages) Run(ctx context.Context, chat *models.Chat, wired *pool.WiredPhones) error {
	info, err := chatInfoFor(chat, lookupOrNil(w.peers))
	if err != nil {
		return err
	}

	checkpoint, err := w.messages.MaxInternalID(ctx, chat.ID)
	if err != nil {
		return err
	}

	return w.runner.pass(ctx, chat, wired, true, false, func(ctx context.Context, s Session) error {
		return w.backfill(ctx, s, chat, info, int(checkpoint))
	})
}

func (w *Messages) backfill(ctx context.Context, s Session, chat *models.Chat, info *telegram.ChatInfo, minID int) error {
	stored := 0
	for offsetID := 0; ; {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.History(ctx, info, offsetID, minID, historyPageSize)
		if err != nil {
			return fmt.Errorf("history page at %d: %w", offsetID, err)
		}
		if len(page) == 0 {
			break
		}

		for _, m := range page {
			if err := w.saveOne(ctx, s, chat, info, &m); err != nil {
				return err
			}
			stored++
		}
		offsetID = page[len(page)-1].ID
	}

	w.log.Info().Str("chat", chat.ID).Int("messages", stored).Int("checkpoint", minID).Msg("scrape: backfill pass complete")
	return nil
}

// saveOne persists one message with its sender, reply linkage, forward
// provenance, media record and extracted links, then walks its thread.
func (w *Messages) saveOne(ctx context.Context, s Session, chat *models.Chat, info *telegram.ChatInfo, m *telegram.MessageInfo) error {
	row := &models.Message{
		InternalID:        int64(m.ID),
		ChatID:            chat.ID,
		IsPinned:          m.Pinned,
		GroupedID:         m.GroupedID,
		ForwardedFromID:   m.FwdFromID,
		ForwardedFromName: m.FwdFromName,
	}
	if m.Text != "" {
		text := m.Text
		row.Text = &text
	}
	date := m.Date
	row.Date = &date

	if m.SenderID != nil {
		member := &models.Member{InternalID: *m.SenderID}
		if err := w.members.Save(ctx, member); err != nil {
			return fmt.Errorf("save sender %d: %w", *m.SenderID, err)
		}
		row.MemberID = &member.ID
	}

	if m.ReplyToID != nil {
		// the parent may not be scraped yet; a stub row holds its place and
		// reconciles when the backfill reaches it
		stub, err := w.messages.Stub(ctx, chat.ID, int64(*m.ReplyToID))
		if err != nil {
			return err
		}
		row.ReplyToID = &stub.ID
	}

	if err := w.messages.Save(ctx, row); err != nil {
		return fmt.Errorf("save message %d: %w", m.ID, err)
	}

	if m.Media != nil {
		if err := w.recordMedia(ctx, s, row, m.Media); err != nil {
			w.log.Debug().Err(err).Int("message", m.ID).Msg("scrape: media record failed")
		}
	}

	w.handleLinks(ctx, s, chat, m.Text)

	if m.Replies > 0 {
		if err := w.walkReplies(ctx, s, chat, info, m.ID); err != nil {
			return err
		}
	}
	return nil
}

// walkReplies stores the thread rooted at msgID. Replies arrive through the
// same saveOne path, minus further thread recursion (telegram threads are
// one level deep).
func (w *Messages) walkReplies(ctx context.Context, s Session, chat *models.Chat, info *telegram.ChatInfo, msgID int) error {
	for offsetID := 0; ; {
		page, err := s.Replies(ctx, info, msgID, offsetID, historyPageSize)
		if err != nil {
			// threads disappear when the linked discussion group does;
			// not a reason to fail the whole backfill
			w.log.Debug().Err(err).Int("message", msgID).Msg("scrape: replies fetch failed")
			return nil
		}
		if len(page) == 0 {
			return nil
		}
		for _, m := range page {
			reply := m
			reply.Replies = 0
			if err := w.saveOne(ctx, s, chat, info, &reply); err != nil {
				return err
			}
		}
		offsetID = page[len(page)-1].ID
	}
}

func (w *Messages) recordMedia(ctx context.Context, s Session, row *models.Message, media *telegram.MediaRef) error {
	record := &models.MessageMedia{
		MessageID:  row.ID,
		InternalID: media.DocumentID,
		Date:       row.Date,
	}
	if err := w.messages.SaveMedia(ctx, record); err != nil {
		return err
	}
	if w.uploader == nil || record.Path != nil {
		return nil
	}

	data, err := s.DownloadMedia(ctx, media)
	if err != nil {
		return fmt.Errorf("download media %d: %w", media.DocumentID, err)
	}
	ext := ".bin"
	if media.IsPhoto {
		ext = ".jpg"
	}
	path, err := w.uploader.Upload(ctx, record.TypeName(), record.ID, fmt.Sprintf("%d%s", media.DocumentID, ext), data)
	if err != nil {
		return err
	}
	record.Path = &path
	return w.messages.SaveMedia(ctx, record)
}

// handleLinks eagerly resolves bare usernames found in message text. A
// username turning out to be a user becomes a Member; a chat becomes a
// placeholder Chat record for later acquisition. Invite-hash links are
// recorded as placeholder chats without any network call: resolving every
// invite hash seen in scraped text would need the full flood-controlled
// resolution pipeline.
func (w *Messages) handleLinks(ctx context.Context, s Session, chat *models.Chat, text string) {
	for _, link := range telegram.ExtractLinks(text) {
		switch link.Kind {
		case telegram.LinkInvite:
			w.placeholderChat(ctx, chat, "https://t.me/joinchat/"+link.Value)
		case telegram.LinkUsername:
			if w.peers != nil {
				cached, err := w.peers.LookupUsername(link.Value)
				if err == nil && cached != nil {
					w.saveCachedLink(ctx, chat, cached)
					continue
				}
			}
			m, err := s.ResolveUser(ctx, link.Value)
			if err != nil {
				w.log.Debug().Err(err).Str("username", link.Value).Msg("scrape: link resolution failed")
				continue
			}
			if m != nil {
				member := &models.Member{InternalID: m.UserID}
				if m.Username != "" {
					member.Username = &m.Username
				}
				if err := w.members.Save(ctx, member); err != nil {
					w.log.Debug().Err(err).Str("username", link.Value).Msg("scrape: linked member save failed")
				}
				continue
			}
			w.placeholderChat(ctx, chat, "https://t.me/"+link.Value)
		}
	}
}

// saveCachedLink persists a linked peer already known to the local cache,
// skipping the resolve round trip entirely.
func (w *Messages) saveCachedLink(ctx context.Context, origin *models.Chat, p *peerdb.Peer) {
	if p.Kind == string(telegram.PeerUser) {
		member := &models.Member{InternalID: p.SignedID}
		if p.Username != "" {
			username := p.Username
			member.Username = &username
		}
		if err := w.members.Save(ctx, member); err != nil {
			w.log.Debug().Err(err).Str("username", p.Username).Msg("scrape: cached member save failed")
		}
		return
	}
	if p.Username == "" {
		return
	}
	w.placeholderChat(ctx, origin, "https://t.me/"+p.Username)
}

func (w *Messages) placeholderChat(ctx context.Context, origin *models.Chat, link string) {
	if link == origin.Link {
		return
	}
	placeholder := &models.Chat{Link: link, Status: models.ChatStatusCreated, ParserID: origin.ParserID}
	if err := w.chats.Save(ctx, placeholder); err != nil {
		w.log.Debug().Err(err).Str("link", link).Msg("scrape: placeholder chat save failed")
	}
}
