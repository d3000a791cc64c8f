package repository

import (
	"context"
	"time"

	"kksr-counter/internal/domain"
)

// Transactor runs fn so that every repository call made with the context it
// receives commits or rolls back together.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ThrottleRepository defines the interface for visitor throttle records
type ThrottleRepository interface {
	// LastTriggered returns when the visitor last triggered the metric on the
	// object, or nil when there is no record. Read failures wrap
	// domain.ErrRetryable.
	LastTriggered(ctx context.Context, key domain.ThrottleKey) (*time.Time, error)

	// Record upserts the record unconditionally. Repeated calls never create
	// duplicates. The admission path uses Claim instead.
	Record(ctx context.Context, rec domain.ThrottleRecord) error

	// Claim upserts the record only when no record exists or the existing one
	// is at least cooldown old. It returns domain.ErrCooldownActive when the
	// existing record wins.
	Claim(ctx context.Context, rec domain.ThrottleRecord, cooldown time.Duration) error

	// Purge deletes every throttle record and returns how many were removed.
	Purge(ctx context.Context) (int64, error)
}

// CounterMutation computes the next counter state from the locked current
// one. Returning an error aborts the update without writing.
type CounterMutation func(current domain.CounterState) (domain.CounterState, error)

// CounterRepository defines the interface for per-object aggregate counters
type CounterRepository interface {
	// Get returns the counters of an object. Objects without counters
	// return a zero state.
	Get(ctx context.Context, objectID int64) (domain.CounterState, error)

	// Update locks the object's counters, applies mutate and persists the
	// result under every current and legacy key.
	Update(ctx context.Context, objectID int64, mutate CounterMutation) (domain.CounterState, error)
}

// ObjectRepository defines the interface for the posts and products counters
// are attached to
type ObjectRepository interface {
	// Get returns domain.ErrObjectNotFound when the object does not exist.
	Get(ctx context.Context, id int64) (*domain.Object, error)

	// ListPublished returns published objects of the given types ordered by id.
	ListPublished(ctx context.Context, types ...domain.ObjectType) ([]domain.Object, error)

	// Upsert creates or updates an object.
	Upsert(ctx context.Context, obj *domain.Object) error
}

// SettingsRepository defines the interface for the stored settings document
type SettingsRepository interface {
	// Load returns the stored document, or nil when none has been saved.
	Load(ctx context.Context) (*domain.SettingsPatch, error)

	// Save replaces the stored document.
	Save(ctx context.Context, settings domain.Settings) error

	// Delete removes the stored document.
	Delete(ctx context.Context) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Tx       Transactor
	Throttle ThrottleRepository
	Counter  CounterRepository
	Object   ObjectRepository
	Settings SettingsRepository
}
