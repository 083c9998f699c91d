// Package pool provides the shared registries that coordinate phones and
// chats across workers. A registry is a mutex-guarded map with condition
// variable wakeups, so a worker can block until at least one entry exists
// instead of polling the backend.
package pool

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by blocking reads after Close.
var ErrClosed = errors.New("pool: registry closed")

// Registry is a keyed collection with blocking iteration. It is constructed
// by the orchestrator and passed into every worker that shares it.
type Registry[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  map[string]T
	closed bool
}

func NewRegistry[T any]() *Registry[T] {
	r := &Registry[T]{items: make(map[string]T)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Put inserts or replaces an entry and wakes all blocked readers.
func (r *Registry[T]) Put(key string, item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = item
	r.cond.Broadcast()
}

// Get returns the entry for key if present.
func (r *Registry[T]) Get(key string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[key]
	return item, ok
}

// Delete removes an entry. Waiters are woken so that empty-check loops
// re-evaluate instead of sleeping on a drained registry.
func (r *Registry[T]) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
	r.cond.Broadcast()
}

// Len returns the number of entries.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Keys returns a copy of the current key set.
func (r *Registry[T]) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a copy of the current entries.
func (r *Registry[T]) Snapshot() map[string]T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]T, len(r.items))
	for k, v := range r.items {
		out[k] = v
	}
	return out
}

// WaitAny blocks until the registry is non-empty, then returns a snapshot.
// Spurious wakeups are absorbed by the empty-check loop. Returns ErrClosed
// after Close and ctx.Err() when the context ends first.
func (r *Registry[T]) WaitAny(ctx context.Context) (map[string]T, error) {
	// a cancelled context must wake the cond sleeper
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.items) == 0 {
		if r.closed {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.cond.Wait()
	}

	out := make(map[string]T, len(r.items))
	for k, v := range r.items {
		out[k] = v
	}
	return out, nil
}

// Close wakes every blocked reader with ErrClosed. Entries already stored
// remain readable through Get and Snapshot.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cond.Broadcast()
}
