package repository

import (
	"context"
	"fmt"

	"github.com/blockedby/tgcrawler/internal/models"
)

// PhonesRepository handles phone records.
type PhonesRepository struct {
	store *Store
}

// NewPhonesRepository creates a phones repository.
func NewPhonesRepository(store *Store) *PhonesRepository {
	return &PhonesRepository{store: store}
}

// Save upserts a phone.
func (r *PhonesRepository) Save(ctx context.Context, p *models.Phone) error {
	return r.store.Save(ctx, p)
}

// Reload refreshes a phone from the backend. The awaiting-code poll loop
// uses this to observe out-of-band code entry.
func (r *PhonesRepository) Reload(ctx context.Context, p *models.Phone) error {
	// code hash is process-local; Deserialize would not touch it but keep
	// it explicit that reload preserves ephemeral login state
	hash := p.CodeHash
	if err := r.store.Reload(ctx, p); err != nil {
		return err
	}
	p.CodeHash = hash
	return nil
}

// GetByID fetches one phone.
func (r *PhonesRepository) GetByID(ctx context.Context, id string) (*models.Phone, error) {
	p := &models.Phone{ID: id}
	if err := r.store.Reload(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListByParser returns all phones owned by a parser.
func (r *PhonesRepository) ListByParser(ctx context.Context, parserID string) ([]*models.Phone, error) {
	rows, err := r.store.Find(ctx, (&models.Phone{}).TypeName(), map[string]string{"parser": parserID})
	if err != nil {
		return nil, fmt.Errorf("list phones: %w", err)
	}
	phones := make([]*models.Phone, 0, len(rows))
	for _, row := range rows {
		p := &models.Phone{}
		if err := p.Deserialize(row); err != nil {
			return nil, err
		}
		phones = append(phones, p)
	}
	return phones, nil
}

// ListReady returns the parser's phones in READY state.
func (r *PhonesRepository) ListReady(ctx context.Context, parserID string) ([]*models.Phone, error) {
	phones, err := r.ListByParser(ctx, parserID)
	if err != nil {
		return nil, err
	}
	ready := phones[:0]
	for _, p := range phones {
		if p.IsReady() {
			ready = append(ready, p)
		}
	}
	return ready, nil
}

// FindByNumber locates a phone by its number.
func (r *PhonesRepository) FindByNumber(ctx context.Context, number string) (*models.Phone, error) {
	rows, err := r.store.Find(ctx, (&models.Phone{}).TypeName(), map[string]string{"number": number})
	if err != nil {
		return nil, fmt.Errorf("find phone by number: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	p := &models.Phone{}
	if err := p.Deserialize(rows[0]); err != nil {
		return nil, err
	}
	return p, nil
}
