package container

import (
	"context"
	"testing"

	"kksr-counter/internal/config"
	"kksr-counter/internal/service"
	"kksr-counter/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	tests := []struct {
		name        string
		config      *config.Config
		expectRedis bool
	}{
		{
			name: "Container with Redis configured",
			config: &config.Config{
				Environment: "development",
				RedisURL:    "redis://" + mr.Addr(),
			},
			expectRedis: true,
		},
		{
			name: "Container without Redis configured",
			config: &config.Config{
				Environment: "development",
			},
			expectRedis: false,
		},
		{
			name: "Container with invalid Redis URL",
			config: &config.Config{
				Environment: "production",
				RedisURL:    "invalid://redis-url",
			},
			expectRedis: false, // Redis client initialization fails but container creation succeeds
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container, err := New(context.Background(), tt.config, logger.NewNop())
			require.NoError(t, err)
			require.NotNil(t, container)
			t.Cleanup(func() {
				if container.MemorySessions != nil {
					container.MemorySessions.Stop()
				}
				if container.RedisClient != nil {
					_ = container.RedisClient.Close()
				}
			})

			assert.Equal(t, tt.expectRedis, container.HasRedis())
			assert.False(t, container.HasDatabase())
			assert.Equal(t, tt.config, container.GetConfig())
			assert.NotNil(t, container.GetLogger())
			assert.NotNil(t, container.Sessions)

			require.NotNil(t, container.Services)
			assert.NotNil(t, container.Services.Engine)
			assert.NotNil(t, container.Services.Seeder)
			assert.NotNil(t, container.Services.Settings)

			if tt.expectRedis {
				assert.IsType(t, &service.RedisSessionGate{}, container.Services.Sessions)
				assert.Nil(t, container.MemorySessions)
			} else {
				assert.IsType(t, &service.MemorySessionGate{}, container.Services.Sessions)
				assert.Same(t, container.MemorySessions, container.Services.Sessions)
			}
		})
	}
}

func TestNew_DatabaseUnreachable(t *testing.T) {
	cfg := &config.Config{DatabaseURL: "not a url"}

	container, err := New(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
	assert.Nil(t, container)
}
