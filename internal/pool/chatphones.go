package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/blockedby/tgcrawler/internal/models"
)

// ChatPhoneSaver persists a chat-phone wiring record.
type ChatPhoneSaver interface {
	Save(ctx context.Context, cp *models.ChatPhone) error
}

// WiredPhones is the set of phones wired to one chat. Join workers add
// entries, scrape workers drop entries whose session died. Every mutation is
// persisted inside the same critical section that mutates the in-memory
// set, so the backend stays the durability boundary.
type WiredPhones struct {
	mu    sync.Mutex
	saver ChatPhoneSaver
	items []*models.ChatPhone
}

func NewWiredPhones(saver ChatPhoneSaver, initial []*models.ChatPhone) *WiredPhones {
	return &WiredPhones{saver: saver, items: initial}
}

// Add wires a phone to the chat and persists the record.
func (w *WiredPhones) Add(ctx context.Context, cp *models.ChatPhone) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, existing := range w.items {
		if existing.PhoneID == cp.PhoneID {
			if existing.IsUsing {
				return nil
			}
			existing.IsUsing = true
			return w.saver.Save(ctx, existing)
		}
	}

	cp.IsUsing = true
	if err := w.saver.Save(ctx, cp); err != nil {
		return fmt.Errorf("persist chat phone: %w", err)
	}
	w.items = append(w.items, cp)
	return nil
}

// Release marks a phone's wiring unusable and persists the flag. The record
// stays in the set so the phone is not re-wired to the same chat.
func (w *WiredPhones) Release(ctx context.Context, phoneID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, cp := range w.items {
		if cp.PhoneID == phoneID && cp.IsUsing {
			cp.IsUsing = false
			if err := w.saver.Save(ctx, cp); err != nil {
				return fmt.Errorf("persist chat phone release: %w", err)
			}
			return nil
		}
	}
	return nil
}

// Using returns the ids of phones currently wired and usable.
func (w *WiredPhones) Using() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, cp := range w.items {
		if cp.IsUsing {
			out = append(out, cp.PhoneID)
		}
	}
	return out
}

// Contains reports whether a phone already has a wiring record, usable
// or not.
func (w *WiredPhones) Contains(phoneID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, cp := range w.items {
		if cp.PhoneID == phoneID {
			return true
		}
	}
	return false
}

// CountUsing returns the number of usable wired phones.
func (w *WiredPhones) CountUsing() int {
	return len(w.Using())
}
