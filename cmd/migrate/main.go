package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"kksr-counter/internal/config"
	"kksr-counter/internal/domain"
	"kksr-counter/internal/repository"
	"kksr-counter/internal/service"
	"kksr-counter/pkg/database"
	"kksr-counter/pkg/logger"
	"kksr-counter/pkg/redis"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

const usage = "Usage: go run ./cmd/migrate [up|drop|purge|seed-objects [count]|regenerate [-force]]"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	// Get command
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	ctx := context.Background()

	// regenerate runs through the service layer, the rest is plain SQL
	if command == "regenerate" {
		if err := regenerate(ctx, dbURL, args); err != nil {
			log.Fatalf("Failed to regenerate counters: %v", err)
		}
		return
	}

	// Connect to database
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "purge":
		if err := purge(ctx, conn); err != nil {
			log.Fatalf("Failed to purge data: %v", err)
		}
		fmt.Println("✅ Throttle records and settings purged successfully")

	case "seed-objects":
		count := 20
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				log.Fatalf("Invalid object count: %q", args[0])
			}
			count = n
		}
		if err := seedObjects(ctx, conn, count); err != nil {
			log.Fatalf("Failed to seed objects: %v", err)
		}
		fmt.Printf("✅ %d objects seeded successfully\n", count)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		// Posts and products known to the counter service
		`CREATE TABLE IF NOT EXISTS objects (
			id BIGINT PRIMARY KEY,
			object_type VARCHAR(20) NOT NULL CHECK (object_type IN ('post', 'product')),
			status VARCHAR(20) NOT NULL DEFAULT 'publish',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_objects_type_status ON objects(object_type, status)`,

		// Counter values, current and legacy keys side by side
		`CREATE TABLE IF NOT EXISTS object_meta (
			object_id BIGINT NOT NULL REFERENCES objects(id) ON DELETE CASCADE,
			meta_key VARCHAR(64) NOT NULL,
			meta_value TEXT NOT NULL,
			PRIMARY KEY (object_id, meta_key)
		)`,

		// Throttle records, one per visitor, object and metric
		`CREATE TABLE IF NOT EXISTS visitor_log (
			id BIGSERIAL PRIMARY KEY,
			visitor_hash CHAR(64) NOT NULL,
			object_id BIGINT NOT NULL,
			object_type VARCHAR(20) NOT NULL,
			data_type VARCHAR(20) NOT NULL CHECK (data_type IN ('rating', 'sales')),
			last_view_time TIMESTAMP WITH TIME ZONE NOT NULL,
			CONSTRAINT uq_visitor_log UNIQUE (visitor_hash, object_id, data_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_visitor_log_object ON visitor_log(object_id, data_type)`,

		// Runtime settings documents
		`CREATE TABLE IF NOT EXISTS options (
			option_name VARCHAR(191) PRIMARY KEY,
			option_value JSONB NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`DROP TABLE IF EXISTS visitor_log CASCADE`,
		`DROP TABLE IF EXISTS object_meta CASCADE`,
		`DROP TABLE IF EXISTS objects CASCADE`,
		`DROP TABLE IF EXISTS options CASCADE`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", query)
	}

	return nil
}

func purge(ctx context.Context, conn *pgx.Conn) error {
	tag, err := conn.Exec(ctx, `DELETE FROM visitor_log`)
	if err != nil {
		return fmt.Errorf("failed to delete throttle records: %w", err)
	}
	fmt.Printf("  Deleted %d throttle records\n", tag.RowsAffected())

	if _, err := conn.Exec(ctx, `DELETE FROM options WHERE option_name = $1`, domain.SettingsOptionName); err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}

	return nil
}

// seedObjects inserts published sample posts and products, alternating types
func seedObjects(ctx context.Context, conn *pgx.Conn, count int) error {
	batch := &pgx.Batch{}
	for i := 1; i <= count; i++ {
		objectType := domain.ObjectPost
		if i%2 == 0 {
			objectType = domain.ObjectProduct
		}
		batch.Queue(`
			INSERT INTO objects (id, object_type, status)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, int64(i), string(objectType), repository.StatusPublished)
	}

	results := conn.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < count; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert object: %w", err)
		}
	}

	return nil
}

// regenerate seeds every published object. Without -force this is the
// activation seeding run. With REDIS_URL set the counter snapshots cached
// by running servers are dropped afterwards.
func regenerate(ctx context.Context, dbURL string, args []string) error {
	fs := flag.NewFlagSet("regenerate", flag.ExitOnError)
	force := fs.Bool("force", false, "re-seed counters that still hold seed values")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.DatabaseURL = dbURL

	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.DatabaseReadURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// Without Redis a running server keeps serving cached counters until
	// redis.TTLCounters runs out
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL, cfg.Environment, appLogger.Logger)
		if err != nil {
			appLogger.WithError(err).Warn("Failed to connect to Redis, cached counters expire on their own")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	repos := repository.NewPostgresRepositories(db)
	settings := service.NewSettingsService(repos.Settings, appLogger.Logger)
	cache := service.NewCacheService(redisClient, appLogger.Logger)
	seeder := service.NewSeeder(repos, settings, cache, appLogger)

	summary, err := seeder.RegenerateAll(ctx, *force)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Regenerated %d objects: %d seeded, %d skipped, %d failed\n",
		summary.Total, summary.Seeded, summary.Skipped, summary.Failed)
	return nil
}
