package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blockedby/tgcrawler/internal/models"
)

// MessagesRepository handles message and message media records.
type MessagesRepository struct {
	store *Store
}

// NewMessagesRepository creates a messages repository.
func NewMessagesRepository(store *Store) *MessagesRepository {
	return &MessagesRepository{store: store}
}

// Save upserts a message. A reply stub saved earlier under the same
// (internalId, chat) key reconciles into the same row here.
func (r *MessagesRepository) Save(ctx context.Context, m *models.Message) error {
	return r.store.Save(ctx, m)
}

// SaveMedia upserts a message media record.
func (r *MessagesRepository) SaveMedia(ctx context.Context, m *models.MessageMedia) error {
	return r.store.Save(ctx, m)
}

// MaxInternalID returns the highest message id stored for a chat. This is
// the monotonic backfill checkpoint: history runs never re-fetch below it.
func (r *MessagesRepository) MaxInternalID(ctx context.Context, chatID string) (int64, error) {
	rows, err := r.store.Find(ctx, (&models.Message{}).TypeName(), map[string]string{
		"chat":   chatID,
		"_sort":  "internalId",
		"_order": "desc",
		"_limit": "1",
	})
	if err != nil {
		return 0, fmt.Errorf("max internal id: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	m := &models.Message{}
	if err := m.Deserialize(rows[0]); err != nil {
		return 0, err
	}
	return m.InternalID, nil
}

// Stub ensures a placeholder message row exists for a reply target and
// returns its identity. When the target was already scraped, the stored row
// is returned untouched; a placeholder must never overwrite real content.
func (r *MessagesRepository) Stub(ctx context.Context, chatID string, internalID int64) (*models.Message, error) {
	rows, err := r.store.Find(ctx, (&models.Message{}).TypeName(), map[string]string{
		"chat":       chatID,
		"internalId": formatID(internalID),
	})
	if err != nil {
		return nil, fmt.Errorf("find reply target: %w", err)
	}
	if len(rows) > 0 {
		m := &models.Message{}
		if err := m.Deserialize(rows[0]); err != nil {
			return nil, err
		}
		return m, nil
	}

	stub := &models.Message{InternalID: internalID, ChatID: chatID}
	if err := r.store.Save(ctx, stub); err != nil {
		return nil, fmt.Errorf("save reply stub: %w", err)
	}
	return stub, nil
}

func formatID(v int64) string {
	return strconv.FormatInt(v, 10)
}
