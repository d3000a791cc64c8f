package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"kksr-counter/internal/domain"
)

// settingsRepository keeps the settings document in its encoded form, so
// loading behaves like the JSONB column: unknown keys are dropped and
// missing keys stay nil.
type settingsRepository struct {
	s *Store
}

func (r *settingsRepository) Load(ctx context.Context) (*domain.SettingsPatch, error) {
	var raw []byte
	r.s.read(ctx, func() {
		raw = r.s.settings
	})

	if raw == nil {
		return nil, nil
	}

	var patch domain.SettingsPatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &patch, nil
}

func (r *settingsRepository) Save(ctx context.Context, settings domain.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return r.s.write(ctx, func(journal func(func())) error {
		prev := r.s.settings
		r.s.settings = raw
		journal(func() { r.s.settings = prev })
		return nil
	})
}

func (r *settingsRepository) Delete(ctx context.Context) error {
	return r.s.write(ctx, func(journal func(func())) error {
		prev := r.s.settings
		r.s.settings = nil
		journal(func() { r.s.settings = prev })
		return nil
	})
}

// SetRawSettings stores an encoded settings document as is.
func (s *Store) SetRawSettings(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = raw
}
