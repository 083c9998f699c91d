// Package repository implements persistence of crawl entities against the
// backend REST API. Save is an upsert: optimistic insert first, and on a
// unique-constraint conflict the entity is re-fetched by its declared
// natural key and retried as an update with the discovered id.
package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/blockedby/tgcrawler/internal/api"
	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
)

// Backend is the slice of the api client the store needs. Narrowed for tests.
type Backend interface {
	List(ctx context.Context, typ string, query map[string]string) ([]map[string]any, error)
	Get(ctx context.Context, typ, id string) (map[string]any, error)
	Create(ctx context.Context, typ string, body map[string]any) (map[string]any, error)
	Update(ctx context.Context, typ, id string, body map[string]any) (map[string]any, error)
	Delete(ctx context.Context, typ, id string) error
}

// Store performs entity persistence over the backend.
type Store struct {
	backend Backend
	log     *logger.Logger
}

// NewStore creates a store over the given backend client.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend, log: logger.With("store")}
}

// Save upserts an entity. Identity is assigned (or reconciled) on the entity
// in place. A unique-constraint conflict costs at most one extra round trip
// and is never surfaced to the caller.
func (s *Store) Save(ctx context.Context, e models.Entity) error {
	if e.Identity() != "" {
		updated, err := s.backend.Update(ctx, e.TypeName(), e.Identity(), e.Serialize())
		if err != nil {
			return fmt.Errorf("save %s: %w", e.TypeName(), err)
		}
		return e.Deserialize(updated)
	}

	created, err := s.backend.Create(ctx, e.TypeName(), e.Serialize())
	if err == nil {
		return e.Deserialize(created)
	}
	if !errors.Is(err, api.ErrUniqueConstraint) {
		return fmt.Errorf("save %s: %w", e.TypeName(), err)
	}

	key := e.UniqueConstraint()
	if key == nil {
		return fmt.Errorf("save %s: %w", e.TypeName(), err)
	}

	s.log.Debug().Str("type", e.TypeName()).Msg("insert conflict, refetching by natural key")
	existing, err := s.backend.List(ctx, e.TypeName(), key)
	if err != nil {
		return fmt.Errorf("save %s: refetch: %w", e.TypeName(), err)
	}
	if len(existing) == 0 {
		return fmt.Errorf("save %s: conflict reported but no row matches natural key", e.TypeName())
	}

	id, _ := existing[0]["id"].(string)
	e.SetIdentity(id)

	// An insert that lost the race carries no clearing intent: it only knows
	// the fields it set. Nil fields take their values from the stored row so
	// a sparse save (reply stub, bare sender) cannot blank enrichment that
	// another pass already persisted.
	body := mergeRows(e.Serialize(), existing[0])

	updated, err := s.backend.Update(ctx, e.TypeName(), id, body)
	if err != nil {
		return fmt.Errorf("save %s: retry update: %w", e.TypeName(), err)
	}
	return e.Deserialize(updated)
}

func mergeRows(body, stored map[string]any) map[string]any {
	for k, v := range stored {
		if k == "id" || isNilValue(v) {
			continue
		}
		if cur, ok := body[k]; !ok || isNilValue(cur) {
			body[k] = v
		}
	}
	return body
}

// isNilValue catches both untyped nils and typed nil pointers hiding inside
// an interface, which serialized optional fields produce.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// Find loads all entities of typ matching the query into fresh maps.
func (s *Store) Find(ctx context.Context, typ string, query map[string]string) ([]map[string]any, error) {
	return s.backend.List(ctx, typ, query)
}

// Reload refreshes an entity from the backend by its identity.
func (s *Store) Reload(ctx context.Context, e models.Entity) error {
	if e.Identity() == "" {
		return fmt.Errorf("reload %s: no identity", e.TypeName())
	}
	data, err := s.backend.Get(ctx, e.TypeName(), e.Identity())
	if err != nil {
		return fmt.Errorf("reload %s: %w", e.TypeName(), err)
	}
	return e.Deserialize(data)
}
