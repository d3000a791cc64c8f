package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"kksr-counter/internal/domain"
	"kksr-counter/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedisGate(t *testing.T) (*miniredis.Miniredis, *redis.Client, *RedisSessionGate) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := redis.NewClient("redis://"+mr.Addr(), "development", zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return mr, client, NewRedisSessionGate(client, redis.TTLSessionMarks, zap.NewNop())
}

func testSessionGateContract(t *testing.T, gate SessionGate) {
	ctx := context.Background()

	marked, err := gate.IsMarked(ctx, "s1", 1, domain.MetricRating)
	require.NoError(t, err)
	assert.False(t, marked)

	require.NoError(t, gate.Mark(ctx, "s1", 1, domain.MetricRating))
	require.NoError(t, gate.Mark(ctx, "s1", 1, domain.MetricRating))

	tests := []struct {
		name     string
		session  string
		objectID int64
		metric   domain.MetricType
		want     bool
	}{
		{"same key", "s1", 1, domain.MetricRating, true},
		{"fresh session", "s2", 1, domain.MetricRating, false},
		{"other metric", "s1", 1, domain.MetricSales, false},
		{"other object", "s1", 2, domain.MetricRating, false},
		{"no session", "", 1, domain.MetricRating, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marked, err := gate.IsMarked(ctx, tt.session, tt.objectID, tt.metric)
			require.NoError(t, err)
			assert.Equal(t, tt.want, marked)
		})
	}

	require.NoError(t, gate.Mark(ctx, "", 1, domain.MetricRating))
	marked, err = gate.IsMarked(ctx, "", 1, domain.MetricRating)
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestMemorySessionGate(t *testing.T) {
	testSessionGateContract(t, NewMemorySessionGate(time.Hour))
}

func TestMemorySessionGate_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: t0}
	gate := NewMemorySessionGate(24 * time.Hour)
	gate.now = clock.Now

	for i := 0; i < 1000; i++ {
		require.NoError(t, gate.Mark(ctx, fmt.Sprintf("session-%d", i), 1, domain.MetricRating))
	}
	require.Equal(t, 1000, gate.Len())

	clock.Advance(23 * time.Hour)
	require.NoError(t, gate.Mark(ctx, "session-0", 2, domain.MetricSales))

	marked, err := gate.IsMarked(ctx, "session-1", 1, domain.MetricRating)
	require.NoError(t, err)
	assert.True(t, marked, "inside the ttl")

	clock.Advance(2 * time.Hour)

	marked, err = gate.IsMarked(ctx, "session-1", 1, domain.MetricRating)
	require.NoError(t, err)
	assert.False(t, marked, "expired marks are absent")

	// a later mark refreshes the whole session, like EXPIRE on the Redis hash
	marked, err = gate.IsMarked(ctx, "session-0", 1, domain.MetricRating)
	require.NoError(t, err)
	assert.True(t, marked)

	assert.Equal(t, 999, gate.Prune())
	assert.Equal(t, 1, gate.Len())

	clock.Advance(30 * 24 * time.Hour)
	assert.Equal(t, 1, gate.Prune())
	assert.Equal(t, 0, gate.Len())
}

func TestMemorySessionGate_MarkAfterExpiryStartsFresh(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: t0}
	gate := NewMemorySessionGate(time.Hour)
	gate.now = clock.Now

	require.NoError(t, gate.Mark(ctx, "s1", 1, domain.MetricRating))
	clock.Advance(2 * time.Hour)
	require.NoError(t, gate.Mark(ctx, "s1", 2, domain.MetricRating))

	marked, err := gate.IsMarked(ctx, "s1", 1, domain.MetricRating)
	require.NoError(t, err)
	assert.False(t, marked)

	marked, err = gate.IsMarked(ctx, "s1", 2, domain.MetricRating)
	require.NoError(t, err)
	assert.True(t, marked)
}

func TestMemorySessionGate_BackgroundSweep(t *testing.T) {
	clock := &testClock{now: t0}
	gate := NewMemorySessionGate(time.Minute)
	gate.now = clock.Now

	require.NoError(t, gate.Mark(context.Background(), "s1", 1, domain.MetricRating))
	clock.Advance(time.Hour)

	gate.Start(5 * time.Millisecond)
	gate.Start(5 * time.Millisecond)
	t.Cleanup(gate.Stop)

	assert.Eventually(t, func() bool { return gate.Len() == 0 }, time.Second, 5*time.Millisecond)

	gate.Stop()
	gate.Stop()
}

func TestRedisSessionGate(t *testing.T) {
	mr, _, gate := setupRedisGate(t)
	testSessionGateContract(t, gate)

	key := "staging:session:s1:marks"
	assert.True(t, mr.Exists(key))
	fields, err := mr.HKeys(key)
	require.NoError(t, err)
	assert.Equal(t, []string{"rating:1"}, fields)
	assert.Equal(t, redis.TTLSessionMarks, mr.TTL(key))

	mr.FastForward(redis.TTLSessionMarks + time.Second)
	marked, err := gate.IsMarked(context.Background(), "s1", 1, domain.MetricRating)
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestRedisSessionGate_Unavailable(t *testing.T) {
	mr, _, gate := setupRedisGate(t)
	mr.Close()

	_, err := gate.IsMarked(context.Background(), "s1", 1, domain.MetricRating)
	assert.ErrorIs(t, err, domain.ErrRetryable)
}
