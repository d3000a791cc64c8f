package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/repository"
)

// StarSource draws rating values. Implementations must be safe for
// concurrent use.
type StarSource interface {
	// Between returns an integer in [lo, hi].
	Between(lo, hi int) int
}

type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewStarSource returns a StarSource seeded with seed.
func NewStarSource(seed int64) StarSource {
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Between(lo, hi int) int {
	if hi <= lo {
		return lo
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return lo + l.rng.Intn(hi-lo+1)
}

// CounterStore applies increments to the aggregate counters of objects
type CounterStore struct {
	counters repository.CounterRepository
	stars    StarSource
}

// NewCounterStore creates a counter store. A nil source draws from a
// generator seeded with the current time.
func NewCounterStore(counters repository.CounterRepository, stars StarSource) *CounterStore {
	if stars == nil {
		stars = NewStarSource(time.Now().UnixNano())
	}
	return &CounterStore{counters: counters, stars: stars}
}

// Get returns the counters of an object
func (s *CounterStore) Get(ctx context.Context, objectID int64) (domain.CounterState, error) {
	return s.counters.Get(ctx, objectID)
}

// ApplyIncrement adds one sale or one drawn rating to an object. The
// threshold is checked again under the counter lock, so concurrent
// increments from distinct visitors never push a counter past it.
func (s *CounterStore) ApplyIncrement(ctx context.Context, objectID int64, metric domain.MetricType, settings domain.Settings) (domain.CounterState, error) {
	limits := settings.ForMetric(metric)

	state, err := s.counters.Update(ctx, objectID, func(current domain.CounterState) (domain.CounterState, error) {
		if limits.Blocks(current.Count(metric)) {
			return current, domain.ErrThresholdReached
		}

		switch metric {
		case domain.MetricSales:
			return current.AddSale(), nil
		case domain.MetricRating:
			return current.AddRating(s.stars.Between(settings.RatingMinStars, settings.RatingMaxStars)), nil
		default:
			return current, domain.ErrUnknownMetric
		}
	})
	if err != nil {
		return domain.CounterState{}, fmt.Errorf("apply %s increment to object %d: %w", metric, objectID, err)
	}

	return state, nil
}
