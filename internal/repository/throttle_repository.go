package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kksr-counter/internal/domain"
	"kksr-counter/pkg/database"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// throttleRepository stores throttle records in the visitor_log table
type throttleRepository struct {
	db *database.PostgresDB
}

// NewThrottleRepository creates a new throttle repository
func NewThrottleRepository(db *database.PostgresDB) ThrottleRepository {
	return &throttleRepository{db: db}
}

// LastTriggered returns the last trigger time of a visitor on an object metric
func (r *throttleRepository) LastTriggered(ctx context.Context, key domain.ThrottleKey) (*time.Time, error) {
	query := `
		SELECT last_view_time
		FROM visitor_log
		WHERE visitor_hash = $1 AND object_id = $2 AND data_type = $3
	`

	var last time.Time
	err := r.db.Reader(ctx).QueryRow(ctx, query,
		key.Identity.String(),
		key.ObjectID,
		key.Metric.String(),
	).Scan(&last)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read throttle record: %w: %w", domain.ErrRetryable, err)
	}

	return &last, nil
}

// Record upserts a throttle record unconditionally
func (r *throttleRepository) Record(ctx context.Context, rec domain.ThrottleRecord) error {
	query := `
		INSERT INTO visitor_log (visitor_hash, object_id, object_type, data_type, last_view_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (visitor_hash, object_id, data_type) DO UPDATE SET
			object_type = EXCLUDED.object_type,
			last_view_time = EXCLUDED.last_view_time
	`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		rec.Identity.String(),
		rec.ObjectID,
		string(rec.ObjectType),
		rec.Metric.String(),
		rec.LastTriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record throttle: %w", err)
	}

	return nil
}

// Claim is the conditional form of Record. The WHERE clause of the conflict
// update is evaluated against the committed row, so of two concurrent claims
// on the same key only one returns a row.
func (r *throttleRepository) Claim(ctx context.Context, rec domain.ThrottleRecord, cooldown time.Duration) error {
	query := `
		INSERT INTO visitor_log (visitor_hash, object_id, object_type, data_type, last_view_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (visitor_hash, object_id, data_type) DO UPDATE SET
			object_type = EXCLUDED.object_type,
			last_view_time = EXCLUDED.last_view_time
		WHERE visitor_log.last_view_time <= $6
		RETURNING id
	`

	var id int64
	err := r.db.Conn(ctx).QueryRow(ctx, query,
		rec.Identity.String(),
		rec.ObjectID,
		string(rec.ObjectType),
		rec.Metric.String(),
		rec.LastTriggeredAt,
		rec.LastTriggeredAt.Add(-cooldown),
	).Scan(&id)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return domain.ErrCooldownActive
		}
		return fmt.Errorf("failed to claim throttle: %w", err)
	}

	return nil
}

// Purge removes every throttle record
func (r *throttleRepository) Purge(ctx context.Context) (int64, error) {
	result, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM visitor_log`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge throttle records: %w", err)
	}

	return result.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // Unique violation error code
	}
	return false
}
