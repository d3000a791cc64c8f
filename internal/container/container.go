package container

import (
	"context"
	"fmt"
	"time"

	"kksr-counter/internal/config"
	"kksr-counter/internal/repository"
	"kksr-counter/internal/repository/memory"
	"kksr-counter/internal/service"
	"kksr-counter/internal/session"
	"kksr-counter/pkg/database"
	"kksr-counter/pkg/logger"
	"kksr-counter/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           *database.PostgresDB
	RedisClient  *redis.Client
	Repositories *repository.Repositories
	Services     *service.Services
	Sessions     *session.Manager

	// MemorySessions is set when session marks fall back to process memory
	MemorySessions *service.MemorySessionGate
}

const sessionSweepInterval = time.Minute

// New creates a new dependency injection container. Without DATABASE_URL the
// repositories live in process memory; without a reachable Redis session
// marks do too.
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Container, error) {
	var (
		db    *database.PostgresDB
		repos *repository.Repositories
	)
	if cfg.DatabaseURL != "" {
		conn, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.DatabaseReadURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db = conn
		repos = repository.NewPostgresRepositories(db)
		logger.Info("PostgreSQL repositories initialized successfully")
	} else {
		repos = memory.NewStore().Repositories()
		logger.Warn("Database URL not configured, using in-memory repositories")
	}

	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without Redis")
		} else {
			redisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, proceeding without Redis")
	}

	var (
		sessions       service.SessionGate
		memorySessions *service.MemorySessionGate
	)
	if redisClient != nil {
		sessions = service.NewRedisSessionGate(redisClient, cfg.SessionTTL, logger.Logger)
	} else {
		memorySessions = service.NewMemorySessionGate(cfg.SessionTTL)
		memorySessions.Start(sessionSweepInterval)
		sessions = memorySessions
	}

	cache := service.NewCacheService(redisClient, logger.Logger)
	settings := service.NewSettingsService(repos.Settings, logger.Logger)
	counters := service.NewCounterStore(repos.Counter, nil)

	services := &service.Services{
		Engine: service.NewIncrementEngine(service.EngineDeps{
			Repos:    repos,
			Counters: counters,
			Sessions: sessions,
			Settings: settings,
			Cache:    cache,
			Logger:   logger,
		}),
		Seeder:   service.NewSeeder(repos, settings, cache, logger),
		Settings: settings,
		Counters: counters,
		Cache:    cache,
		Sessions: sessions,
	}

	sessionManager := session.NewManager(session.Options{
		Secret:     cfg.SessionSecret,
		CookieName: cfg.SessionCookieName,
		TTL:        cfg.SessionTTL,
		Secure:     !cfg.IsDevelopment(),
	}, logger.Logger)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		RedisClient:  redisClient,
		Repositories: repos,
		Services:     services,
		Sessions:     sessionManager,

		MemorySessions: memorySessions,
	}, nil
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// HasDatabase returns true if PostgreSQL backs the repositories
func (c *Container) HasDatabase() bool {
	return c.DB != nil
}
