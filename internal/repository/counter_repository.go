package repository

import (
	"context"
	"errors"
	"fmt"

	"kksr-counter/internal/domain"
	"kksr-counter/pkg/database"

	"github.com/jackc/pgx/v5"
)

// counterRepository stores counters as rows of the object_meta table
type counterRepository struct {
	db *database.PostgresDB
}

// NewCounterRepository creates a new counter repository
func NewCounterRepository(db *database.PostgresDB) CounterRepository {
	return &counterRepository{db: db}
}

// Get returns the current counters of an object
func (r *counterRepository) Get(ctx context.Context, objectID int64) (domain.CounterState, error) {
	meta, err := r.loadMeta(ctx, r.db.Reader(ctx), objectID)
	if err != nil {
		return domain.CounterState{}, fmt.Errorf("failed to read counters: %w: %w", domain.ErrRetryable, err)
	}

	return DecodeCounterMeta(objectID, meta), nil
}

// Update locks the object row for the rest of the transaction, so counter
// read-modify-writes on one object are serialized.
func (r *counterRepository) Update(ctx context.Context, objectID int64, mutate CounterMutation) (domain.CounterState, error) {
	var result domain.CounterState

	err := r.db.WithinTransaction(ctx, func(ctx context.Context) error {
		q := r.db.Conn(ctx)

		var id int64
		err := q.QueryRow(ctx, `SELECT id FROM objects WHERE id = $1 FOR UPDATE`, objectID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrObjectNotFound
			}
			return fmt.Errorf("failed to lock object: %w", err)
		}

		meta, err := r.loadMeta(ctx, q, objectID)
		if err != nil {
			return err
		}

		current := DecodeCounterMeta(objectID, meta)
		next, err := mutate(current)
		if err != nil {
			return err
		}
		next.ObjectID = objectID

		set, del := EncodeCounterMeta(current, next)
		if err := r.writeMeta(ctx, q, objectID, set, del); err != nil {
			return err
		}

		result = next
		return nil
	})
	if err != nil {
		return domain.CounterState{}, err
	}

	return result, nil
}

func (r *counterRepository) loadMeta(ctx context.Context, q database.Querier, objectID int64) (map[string]string, error) {
	query := `
		SELECT meta_key, meta_value
		FROM object_meta
		WHERE object_id = $1 AND meta_key = ANY($2)
	`

	rows, err := q.Query(ctx, query, objectID, domain.CounterMetaKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to query counter meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string, len(domain.CounterMetaKeys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan counter meta row: %w", err)
		}
		meta[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading counter meta rows: %w", err)
	}

	return meta, nil
}

func (r *counterRepository) writeMeta(ctx context.Context, q database.Querier, objectID int64, set map[string]string, del []string) error {
	if len(set) == 0 && len(del) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for key, value := range set {
		batch.Queue(`
			INSERT INTO object_meta (object_id, meta_key, meta_value)
			VALUES ($1, $2, $3)
			ON CONFLICT (object_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value
		`, objectID, key, value)
	}
	if len(del) > 0 {
		batch.Queue(`DELETE FROM object_meta WHERE object_id = $1 AND meta_key = ANY($2)`, objectID, del)
	}

	br := q.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to write counter meta: %w", err)
		}
	}

	return br.Close()
}
