package repository

import (
	"context"

	"github.com/blockedby/tgcrawler/internal/models"
)

// MembersRepository handles member, chat-member and role records.
type MembersRepository struct {
	store *Store
}

// NewMembersRepository creates a members repository.
func NewMembersRepository(store *Store) *MembersRepository {
	return &MembersRepository{store: store}
}

// Save upserts a member by its telegram id.
func (r *MembersRepository) Save(ctx context.Context, m *models.Member) error {
	return r.store.Save(ctx, m)
}

// SaveChatMember upserts the chat binding.
func (r *MembersRepository) SaveChatMember(ctx context.Context, cm *models.ChatMember) error {
	return r.store.Save(ctx, cm)
}

// SaveRole upserts the role classification.
func (r *MembersRepository) SaveRole(ctx context.Context, role *models.ChatMemberRole) error {
	return r.store.Save(ctx, role)
}

// SaveMedia upserts a member profile photo record.
func (r *MembersRepository) SaveMedia(ctx context.Context, m *models.MemberMedia) error {
	return r.store.Save(ctx, m)
}

// HasStoredMedia reports whether a photo with this telegram id already has a
// non-null path, i.e. the upload finished earlier.
func (r *MembersRepository) HasStoredMedia(ctx context.Context, internalID int64) (bool, error) {
	rows, err := r.store.Find(ctx, (&models.MemberMedia{}).TypeName(), map[string]string{
		"internalId": formatID(internalID),
	})
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		m := &models.MemberMedia{}
		if err := m.Deserialize(row); err != nil {
			return false, err
		}
		if m.Path != nil {
			return true, nil
		}
	}
	return false, nil
}
