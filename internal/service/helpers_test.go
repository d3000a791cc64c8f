package service

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/repository"
	"kksr-counter/internal/repository/memory"
	"kksr-counter/pkg/logger"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingStars remembers every drawn value
type recordingStars struct {
	mu    sync.Mutex
	rng   *rand.Rand
	draws []int
}

func (r *recordingStars) Between(lo, hi int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := lo + r.rng.Intn(hi-lo+1)
	r.draws = append(r.draws, v)
	return v
}

func (r *recordingStars) Sum() (sum int, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.draws {
		sum += v
	}
	return sum, len(r.draws)
}

type fixture struct {
	store    *memory.Store
	repos    *repository.Repositories
	clock    *testClock
	stars    *recordingStars
	sessions SessionGate
	cache    *CacheService
	settings *SettingsService
	counters *CounterStore
	engine   *IncrementEngine
	seeder   *Seeder
}

type fixtureOption func(f *fixture)

func withCounterRepo(wrap func(repository.CounterRepository) repository.CounterRepository) fixtureOption {
	return func(f *fixture) {
		f.repos.Counter = wrap(f.repos.Counter)
	}
}

func withSessions(g SessionGate) fixtureOption {
	return func(f *fixture) {
		f.sessions = g
	}
}

func withCache(c *CacheService) fixtureOption {
	return func(f *fixture) {
		f.cache = c
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	log := logger.NewNop()
	store := memory.NewStore()
	f := &fixture{
		store:    store,
		repos:    store.Repositories(),
		clock:    &testClock{now: t0},
		stars:    &recordingStars{rng: rand.New(rand.NewSource(1))},
		sessions: NewMemorySessionGate(24 * time.Hour),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.settings = NewSettingsService(f.repos.Settings, log.Logger)
	f.counters = NewCounterStore(f.repos.Counter, f.stars)
	if f.cache == nil {
		f.cache = NewCacheService(nil, log.Logger)
	}
	cache := f.cache
	f.engine = NewIncrementEngine(EngineDeps{
		Repos:    f.repos,
		Counters: f.counters,
		Sessions: f.sessions,
		Settings: f.settings,
		Cache:    cache,
		Logger:   log,
		Now:      f.clock.Now,
	})
	f.seeder = NewSeeder(f.repos, f.settings, cache, log)
	return f
}

func (f *fixture) addObject(t *testing.T, id int64, objectType domain.ObjectType) {
	t.Helper()
	require.NoError(t, f.repos.Object.Upsert(context.Background(), &domain.Object{
		ID:     id,
		Type:   objectType,
		Status: repository.StatusPublished,
	}))
}

func (f *fixture) setCounters(t *testing.T, state domain.CounterState) {
	t.Helper()
	_, err := f.repos.Counter.Update(context.Background(), state.ObjectID, func(domain.CounterState) (domain.CounterState, error) {
		return state, nil
	})
	require.NoError(t, err)
}

func (f *fixture) counterState(t *testing.T, objectID int64) domain.CounterState {
	t.Helper()
	state, err := f.repos.Counter.Get(context.Background(), objectID)
	require.NoError(t, err)
	return state
}

func (f *fixture) updateSettings(t *testing.T, patch domain.SettingsPatch) {
	t.Helper()
	_, err := f.settings.Update(context.Background(), patch)
	require.NoError(t, err)
}

func view(objectID int64, objectType domain.ObjectType, ip, session string) domain.PageView {
	return domain.PageView{
		ObjectID:   objectID,
		ObjectType: objectType,
		IP:         ip,
		UserAgent:  "Mozilla/5.0 (X11; Linux x86_64)",
		Session:    session,
	}
}

func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }
