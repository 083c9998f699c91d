package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/blockedby/tgcrawler/internal/config"
	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/peerdb"
	"github.com/blockedby/tgcrawler/internal/pool"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/telegram"
)

// searchSeeds widens participant enumeration beyond telegram's ~200-result
// cap per distinct search prefix on large chats: the empty seed catches the
// default listing, the rest sweep the common first characters.
const searchSeeds = "abcdefghijklmnopqrstuvwxyz0123456789_"

const participantsPageSize = 200

// Members enumerates a chat's participants and upserts member, chat-member
// and role records, plus photo records for profiles not yet stored.
type Members struct {
	runner   *runner
	members  *repository.MembersRepository
	peers    *peerdb.DB
	uploader *Uploader
	log      *logger.Logger
}

func NewMembers(
	phones *repository.PhonesRepository,
	members *repository.MembersRepository,
	peers *peerdb.DB,
	uploader *Uploader,
	provider *telegram.Provider,
	cfg *config.Config,
) *Members {
	log := logger.With("scrape-members")
	return &Members{
		runner:   newRunner(phones, provider, log),
		members:  members,
		peers:    peers,
		uploader: uploader,
		log:      log,
	}
}

// Run performs one full members pass over the chat.
func (w *Members) Run(ctx context.Context, chat *models.Chat, wired *pool.WiredPhones) error {
	info, err := chatInfoFor(chat, lookupOrNil(w.peers))
	if err != nil {
		return err
	}
	return w.runner.pass(ctx, chat, wired, true, false, func(ctx context.Context, s Session) error {
		return w.enumerate(ctx, s, chat, info)
	})
}

func (w *Members) enumerate(ctx context.Context, s Session, chat *models.Chat, info *telegram.ChatInfo) error {
	seen := make(map[int64]bool)

	seeds := []string{""}
	for _, c := range searchSeeds {
		seeds = append(seeds, string(c))
	}

	for _, seed := range seeds {
		if err := w.enumerateSeed(ctx, s, chat, info, seed, seen); err != nil {
			return err
		}
	}

	w.log.Info().Str("chat", chat.ID).Int("members", len(seen)).Msg("scrape: members pass complete")
	return nil
}

func (w *Members) enumerateSeed(ctx context.Context, s Session, chat *models.Chat, info *telegram.ChatInfo, seed string, seen map[int64]bool) error {
	for offset := 0; ; {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, total, err := s.Participants(ctx, info, seed, offset, participantsPageSize)
		if err != nil {
			return fmt.Errorf("participants page seed %q offset %d: %w", seed, offset, err)
		}
		if len(page) == 0 {
			return nil
		}

		for _, m := range page {
			if seen[m.UserID] {
				continue
			}
			seen[m.UserID] = true
			member, err := w.Upsert(ctx, chat, &m)
			if err != nil {
				return err
			}
			if m.Photo != nil {
				if err := w.storePhoto(ctx, s, member, m.Photo); err != nil {
					w.log.Debug().Err(err).Int64("user", m.UserID).Msg("scrape: photo store failed")
				}
			}
		}

		offset += len(page)
		if offset >= total {
			return nil
		}
	}
}

// Upsert persists one participant: Member, then ChatMember, then the role.
// Also used by the monitor for join and leave events.
func (w *Members) Upsert(ctx context.Context, chat *models.Chat, m *telegram.MemberInfo) (*models.Member, error) {
	member := &models.Member{InternalID: m.UserID}
	if m.Username != "" {
		member.Username = &m.Username
	}
	if m.FirstName != "" {
		member.FirstName = &m.FirstName
	}
	if m.LastName != "" {
		member.LastName = &m.LastName
	}
	if m.Phone != "" {
		member.Phone = &m.Phone
	}
	if err := w.members.Save(ctx, member); err != nil {
		return nil, fmt.Errorf("save member %d: %w", m.UserID, err)
	}

	cm := &models.ChatMember{ChatID: chat.ID, MemberID: member.ID, Date: m.JoinDate, IsLeft: m.Left}
	if err := w.members.SaveChatMember(ctx, cm); err != nil {
		return nil, fmt.Errorf("save chat member %d: %w", m.UserID, err)
	}

	if m.Role != "" && m.Role != "member" {
		role := &models.ChatMemberRole{ChatMemberID: cm.ID, Title: m.RoleTitle, Code: m.Role}
		if err := w.members.SaveRole(ctx, role); err != nil {
			return nil, fmt.Errorf("save role for %d: %w", m.UserID, err)
		}
	}

	if w.peers != nil {
		if err := w.peers.RememberUser(m); err != nil {
			w.log.Debug().Err(err).Int64("user", m.UserID).Msg("scrape: peer cache update failed")
		}
	}
	return member, nil
}

// storePhoto records the profile photo and, when it is not already stored,
// downloads it and pushes it to the backend. Photos already uploaded under
// this telegram id are skipped.
func (w *Members) storePhoto(ctx context.Context, s Session, member *models.Member, photo *telegram.PhotoRef) error {
	stored, err := w.members.HasStoredMedia(ctx, photo.PhotoID)
	if err != nil {
		return err
	}
	if stored {
		return nil
	}

	now := time.Now()
	media := &models.MemberMedia{MemberID: member.ID, InternalID: photo.PhotoID, Date: &now}
	if err := w.members.SaveMedia(ctx, media); err != nil {
		return err
	}
	if w.uploader == nil {
		return nil
	}

	data, err := s.DownloadProfilePhoto(ctx, photo)
	if err != nil {
		return fmt.Errorf("download photo %d: %w", photo.PhotoID, err)
	}
	path, err := w.uploader.Upload(ctx, media.TypeName(), media.ID, fmt.Sprintf("%d.jpg", photo.PhotoID), data)
	if err != nil {
		return err
	}
	media.Path = &path
	return w.members.SaveMedia(ctx, media)
}
