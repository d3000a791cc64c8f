package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kksr-counter/internal/domain"
	"kksr-counter/pkg/redis"

	"go.uber.org/zap"
)

func markField(objectID int64, metric domain.MetricType) string {
	return fmt.Sprintf("%s:%d", metric, objectID)
}

// RedisSessionGate keeps the marks of a session in one Redis hash that
// expires with the session.
type RedisSessionGate struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisSessionGate creates a session gate backed by Redis. A
// non-positive ttl falls back to redis.TTLSessionMarks.
func NewRedisSessionGate(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSessionGate {
	if ttl <= 0 {
		ttl = redis.TTLSessionMarks
	}
	return &RedisSessionGate{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func (g *RedisSessionGate) IsMarked(ctx context.Context, session string, objectID int64, metric domain.MetricType) (bool, error) {
	if session == "" {
		return false, nil
	}

	marked, err := g.redis.HExists(ctx, g.redis.KeyBuilder.KeySessionMarks(session), markField(objectID, metric))
	if err != nil {
		return false, fmt.Errorf("failed to read session mark: %w: %w", domain.ErrRetryable, err)
	}
	return marked, nil
}

func (g *RedisSessionGate) Mark(ctx context.Context, session string, objectID int64, metric domain.MetricType) error {
	if session == "" {
		return nil
	}

	key := g.redis.KeyBuilder.KeySessionMarks(session)
	if err := g.redis.HSetWithTTL(ctx, key, markField(objectID, metric), g.now().Unix(), g.ttl); err != nil {
		return fmt.Errorf("failed to mark session: %w", err)
	}

	g.logger.Debug("Session marked",
		zap.Int64("object_id", objectID),
		zap.String("metric", metric.String()))
	return nil
}

// MemorySessionGate keeps session marks in process memory. Like the Redis
// hash, a session's marks expire ttl after its last mark; Start runs a
// background sweep that drops expired sessions.
type MemorySessionGate struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	ttl      time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type memorySession struct {
	marks     map[string]struct{}
	expiresAt time.Time
}

// NewMemorySessionGate creates an empty in-memory session gate. A
// non-positive ttl falls back to redis.TTLSessionMarks.
func NewMemorySessionGate(ttl time.Duration) *MemorySessionGate {
	if ttl <= 0 {
		ttl = redis.TTLSessionMarks
	}
	return &MemorySessionGate{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (g *MemorySessionGate) IsMarked(_ context.Context, session string, objectID int64, metric domain.MetricType) (bool, error) {
	if session == "" {
		return false, nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	s, ok := g.sessions[session]
	if !ok || !g.now().Before(s.expiresAt) {
		return false, nil
	}
	_, ok = s.marks[markField(objectID, metric)]
	return ok, nil
}

func (g *MemorySessionGate) Mark(_ context.Context, session string, objectID int64, metric domain.MetricType) error {
	if session == "" {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	s, ok := g.sessions[session]
	if !ok || !now.Before(s.expiresAt) {
		s = &memorySession{marks: make(map[string]struct{})}
		g.sessions[session] = s
	}
	s.marks[markField(objectID, metric)] = struct{}{}
	s.expiresAt = now.Add(g.ttl)
	return nil
}

// Prune drops every expired session and returns how many were removed
func (g *MemorySessionGate) Prune() int {
	now := g.now()
	var expired []string

	g.mu.RLock()
	for id, s := range g.sessions {
		if !now.Before(s.expiresAt) {
			expired = append(expired, id)
		}
	}
	g.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for _, id := range expired {
		// re-check, the session may have been marked again meanwhile
		if s, ok := g.sessions[id]; ok && !now.Before(s.expiresAt) {
			delete(g.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of sessions held, expired or not
func (g *MemorySessionGate) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// Start launches the background sweep. Calling Start twice is a no-op.
func (g *MemorySessionGate) Start(interval time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopCh != nil {
		return
	}
	g.stopCh = make(chan struct{})

	g.wg.Add(1)
	go g.cleanup(interval, g.stopCh)
}

// Stop ends the background sweep and waits for it to exit
func (g *MemorySessionGate) Stop() {
	g.mu.Lock()
	stopCh := g.stopCh
	g.stopCh = nil
	g.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		g.wg.Wait()
	}
}

func (g *MemorySessionGate) cleanup(interval time.Duration, stopCh chan struct{}) {
	defer g.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Prune()
		case <-stopCh:
			return
		}
	}
}
