package repository

import (
	"context"
	"errors"
	"fmt"

	"kksr-counter/internal/domain"
	"kksr-counter/pkg/database"

	"github.com/jackc/pgx/v5"
)

// StatusPublished is the status of objects the seeder visits.
const StatusPublished = "publish"

type objectRepository struct {
	db *database.PostgresDB
}

// NewObjectRepository creates a new object repository
func NewObjectRepository(db *database.PostgresDB) ObjectRepository {
	return &objectRepository{db: db}
}

// Get returns one object by id
func (r *objectRepository) Get(ctx context.Context, id int64) (*domain.Object, error) {
	query := `
		SELECT id, object_type, status, created_at
		FROM objects
		WHERE id = $1
	`

	var obj domain.Object
	var objectType string
	err := r.db.Reader(ctx).QueryRow(ctx, query, id).Scan(
		&obj.ID,
		&objectType,
		&obj.Status,
		&obj.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w: %w", domain.ErrRetryable, err)
	}

	obj.Type = domain.ObjectType(objectType)
	return &obj, nil
}

// ListPublished returns published objects of the given types
func (r *objectRepository) ListPublished(ctx context.Context, types ...domain.ObjectType) ([]domain.Object, error) {
	query := `
		SELECT id, object_type, status, created_at
		FROM objects
		WHERE status = $1 AND object_type = ANY($2)
		ORDER BY id
	`

	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}

	rows, err := r.db.GetReadPool().Query(ctx, query, StatusPublished, names)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	var objects []domain.Object
	for rows.Next() {
		var obj domain.Object
		var objectType string
		if err := rows.Scan(&obj.ID, &objectType, &obj.Status, &obj.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan object row: %w", err)
		}
		obj.Type = domain.ObjectType(objectType)
		objects = append(objects, obj)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading object rows: %w", err)
	}

	return objects, nil
}

// Upsert creates or updates an object
func (r *objectRepository) Upsert(ctx context.Context, obj *domain.Object) error {
	query := `
		INSERT INTO objects (id, object_type, status, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		ON CONFLICT (id) DO UPDATE SET
			object_type = EXCLUDED.object_type,
			status = EXCLUDED.status
		RETURNING created_at
	`

	var createdAt any
	if !obj.CreatedAt.IsZero() {
		createdAt = obj.CreatedAt
	}

	err := r.db.Conn(ctx).QueryRow(ctx, query,
		obj.ID,
		string(obj.Type),
		obj.Status,
		createdAt,
	).Scan(&obj.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert object: %w", err)
	}

	return nil
}
