package repository

import (
	"context"
	"fmt"

	"github.com/blockedby/tgcrawler/internal/models"
)

// ChatsRepository handles chat records.
type ChatsRepository struct {
	store *Store
}

// NewChatsRepository creates a chats repository.
func NewChatsRepository(store *Store) *ChatsRepository {
	return &ChatsRepository{store: store}
}

// Save upserts a chat.
func (r *ChatsRepository) Save(ctx context.Context, c *models.Chat) error {
	return r.store.Save(ctx, c)
}

// Reload refreshes a chat from the backend. Monitoring workers call this at
// sleep points to observe status changes.
func (r *ChatsRepository) Reload(ctx context.Context, c *models.Chat) error {
	return r.store.Reload(ctx, c)
}

// ListByParser returns all chats owned by a parser.
func (r *ChatsRepository) ListByParser(ctx context.Context, parserID string) ([]*models.Chat, error) {
	rows, err := r.store.Find(ctx, (&models.Chat{}).TypeName(), map[string]string{"parser": parserID})
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	chats := make([]*models.Chat, 0, len(rows))
	for _, row := range rows {
		c := &models.Chat{}
		if err := c.Deserialize(row); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, nil
}

// SaveMedia upserts a chat profile photo record.
func (r *ChatsRepository) SaveMedia(ctx context.Context, m *models.ChatMedia) error {
	return r.store.Save(ctx, m)
}

// PendingMedia returns chat photo records whose upload has not finished.
func (r *ChatsRepository) PendingMedia(ctx context.Context, chatID string) ([]*models.ChatMedia, error) {
	rows, err := r.store.Find(ctx, (&models.ChatMedia{}).TypeName(), map[string]string{"chat": chatID})
	if err != nil {
		return nil, fmt.Errorf("list chat media: %w", err)
	}
	var out []*models.ChatMedia
	for _, row := range rows {
		m := &models.ChatMedia{}
		if err := m.Deserialize(row); err != nil {
			return nil, err
		}
		if m.Path == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// ChatPhonesRepository handles the chat-phone wiring records.
type ChatPhonesRepository struct {
	store *Store
}

// NewChatPhonesRepository creates a chat-phones repository.
func NewChatPhonesRepository(store *Store) *ChatPhonesRepository {
	return &ChatPhonesRepository{store: store}
}

// Save upserts a wiring record. The (chat, phone) natural key makes repeated
// joins idempotent.
func (r *ChatPhonesRepository) Save(ctx context.Context, cp *models.ChatPhone) error {
	return r.store.Save(ctx, cp)
}

// ListByChat returns all wiring records for a chat.
func (r *ChatPhonesRepository) ListByChat(ctx context.Context, chatID string) ([]*models.ChatPhone, error) {
	rows, err := r.store.Find(ctx, (&models.ChatPhone{}).TypeName(), map[string]string{"chat": chatID})
	if err != nil {
		return nil, fmt.Errorf("list chat phones: %w", err)
	}
	out := make([]*models.ChatPhone, 0, len(rows))
	for _, row := range rows {
		cp := &models.ChatPhone{}
		if err := cp.Deserialize(row); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}
