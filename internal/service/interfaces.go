package service

import (
	"context"

	"kksr-counter/internal/domain"
)

// SessionGate records which (object, metric) pairs a browser session has
// already been credited for
type SessionGate interface {
	// IsMarked reports whether the session was already credited. An empty
	// session is never marked.
	IsMarked(ctx context.Context, session string, objectID int64, metric domain.MetricType) (bool, error)

	// Mark credits the session. Marking an empty session is a no-op.
	Mark(ctx context.Context, session string, objectID int64, metric domain.MetricType) error
}

// Services aggregates all services
type Services struct {
	Engine   *IncrementEngine
	Seeder   *Seeder
	Settings *SettingsService
	Counters *CounterStore
	Cache    *CacheService
	Sessions SessionGate
}
