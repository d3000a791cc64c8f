// Package memory implements the repositories on process memory. It backs
// local development without PostgreSQL and the service tests.
//
// State is not shared between processes, so a memory store only gives the
// throttle guarantees within a single instance.
package memory

import (
	"context"
	"sync"
	"time"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/repository"
)

type txKey struct{}

// tx is the undo journal of one transaction.
type tx struct {
	store *Store
	undo  []func()
}

// Store holds every table. Repositories returned by Repositories share it
// and its lock.
type Store struct {
	mu       sync.RWMutex
	throttle map[throttleID]time.Time
	types    map[throttleID]domain.ObjectType
	objects  map[int64]domain.Object
	meta     map[int64]map[string]string
	settings []byte
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		throttle: make(map[throttleID]time.Time),
		types:    make(map[throttleID]domain.ObjectType),
		objects:  make(map[int64]domain.Object),
		meta:     make(map[int64]map[string]string),
		now:      time.Now,
	}
}

// Repositories returns the repository set backed by s.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Tx:       s,
		Throttle: &throttleRepository{s: s},
		Counter:  &counterRepository{s: s},
		Object:   &objectRepository{s: s},
		Settings: &settingsRepository{s: s},
	}
}

// WithinTransaction holds the store lock while fn runs. When fn fails every
// write made through the transaction context is undone.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.activeTx(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{store: s}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		return err
	}
	return nil
}

func (s *Store) activeTx(ctx context.Context) *tx {
	if t, ok := ctx.Value(txKey{}).(*tx); ok && t.store == s {
		return t
	}
	return nil
}

// write runs fn under the write lock, or directly when ctx already holds it.
// fn registers compensations through the returned journal function.
func (s *Store) write(ctx context.Context, fn func(journal func(undo func())) error) error {
	if t := s.activeTx(ctx); t != nil {
		return fn(func(undo func()) { t.undo = append(t.undo, undo) })
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(func(func()) {})
}

// read runs fn under the read lock, or directly when ctx already holds the
// write lock.
func (s *Store) read(ctx context.Context, fn func()) {
	if s.activeTx(ctx) != nil {
		fn()
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}
