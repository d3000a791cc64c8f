package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kksr-counter/internal/domain"
	"kksr-counter/pkg/redis"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CounterFetcher loads counters from the source of truth.
type CounterFetcher func(ctx context.Context, objectID int64) (domain.CounterState, error)

// CacheService caches counter snapshots for display. A nil Redis client
// disables caching and every read goes to the fetcher.
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

// GetCountersWithCache retrieves counters with the cache-aside pattern
func (c *CacheService) GetCountersWithCache(ctx context.Context, objectID int64, fallback CounterFetcher) (domain.CounterState, error) {
	if c.redis == nil {
		return fallback(ctx, objectID)
	}

	cacheKey := c.redis.KeyBuilder.KeyCounters(objectID)

	// Try cache first
	cachedData, err := c.redis.Get(ctx, cacheKey)
	if err == nil && cachedData != "" {
		var state domain.CounterState
		if marshalErr := json.Unmarshal([]byte(cachedData), &state); marshalErr == nil {
			c.logger.Debug("Counter cache hit", zap.Int64("object_id", objectID))
			return state, nil
		} else {
			c.logger.Warn("Counter cache corrupted, falling back to database",
				zap.Int64("object_id", objectID),
				zap.Error(marshalErr))
		}
	} else if err != nil && err != goredis.Nil {
		c.logger.Warn("Counter cache error, falling back to database",
			zap.Int64("object_id", objectID),
			zap.Error(err))
	}

	c.logger.Debug("Counter cache miss", zap.Int64("object_id", objectID))
	state, err := fallback(ctx, objectID)
	if err != nil {
		return domain.CounterState{}, fmt.Errorf("database fallback failed: %w", err)
	}

	c.cacheCounters(ctx, state)
	return state, nil
}

// InvalidateCounters drops the cached snapshot of an object
func (c *CacheService) InvalidateCounters(ctx context.Context, objectID int64) {
	if c.redis == nil {
		return
	}

	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyCounters(objectID)); err != nil {
		c.logger.Error("Failed to invalidate counter cache",
			zap.Int64("object_id", objectID),
			zap.Error(err))
	}
}

// InvalidateAllCounters drops every cached snapshot
func (c *CacheService) InvalidateAllCounters(ctx context.Context) {
	if c.redis == nil {
		return
	}

	pattern := c.redis.KeyBuilder.KeyCustom("counters:*")
	if err := c.redis.InvalidatePattern(ctx, pattern); err != nil {
		c.logger.Error("Failed to invalidate counter caches", zap.Error(err))
	}
}

// HealthCheck performs a health check on the cache system
func (c *CacheService) HealthCheck(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}

	start := time.Now()
	err := c.redis.Health(ctx)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Cache health check failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Cache health check passed", zap.Duration("duration", duration))
	return nil
}

func (c *CacheService) cacheCounters(ctx context.Context, state domain.CounterState) {
	data, err := json.Marshal(state)
	if err != nil {
		c.logger.Error("Failed to marshal counters for caching",
			zap.Int64("object_id", state.ObjectID),
			zap.Error(err))
		return
	}

	if err := c.redis.Set(ctx, c.redis.KeyBuilder.KeyCounters(state.ObjectID), string(data), redis.TTLCounters); err != nil {
		c.logger.Error("Failed to cache counters",
			zap.Int64("object_id", state.ObjectID),
			zap.Error(err))
	}
}
