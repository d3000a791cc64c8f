package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"kksr-counter/internal/domain"
	"kksr-counter/pkg/database"

	"github.com/jackc/pgx/v5"
)

// settingsRepository keeps the settings document as one JSONB row of the
// options table
type settingsRepository struct {
	db *database.PostgresDB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *database.PostgresDB) SettingsRepository {
	return &settingsRepository{db: db}
}

// Load returns the stored settings document
func (r *settingsRepository) Load(ctx context.Context) (*domain.SettingsPatch, error) {
	query := `SELECT option_value FROM options WHERE option_name = $1`

	var raw []byte
	err := r.db.Reader(ctx).QueryRow(ctx, query, domain.SettingsOptionName).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load settings: %w: %w", domain.ErrRetryable, err)
	}

	var patch domain.SettingsPatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	return &patch, nil
}

// Save replaces the stored settings document
func (r *settingsRepository) Save(ctx context.Context, settings domain.Settings) error {
	query := `
		INSERT INTO options (option_name, option_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (option_name) DO UPDATE SET
			option_value = EXCLUDED.option_value,
			updated_at = EXCLUDED.updated_at
	`

	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if _, err := r.db.Conn(ctx).Exec(ctx, query, domain.SettingsOptionName, raw); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	return nil
}

// Delete removes the stored settings document
func (r *settingsRepository) Delete(ctx context.Context) error {
	if _, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM options WHERE option_name = $1`, domain.SettingsOptionName); err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}
	return nil
}
