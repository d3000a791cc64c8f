package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/service"
	apperrors "kksr-counter/pkg/errors"

	"go.uber.org/zap"
)

// AdminHandler exposes settings, bulk regeneration and throttle purge
type AdminHandler struct {
	settings          *service.SettingsService
	seeder            *service.Seeder
	engine            *service.IncrementEngine
	regenerateTimeout time.Duration
	logger            *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(services *service.Services, regenerateTimeout time.Duration, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		settings:          services.Settings,
		seeder:            services.Seeder,
		engine:            services.Engine,
		regenerateTimeout: regenerateTimeout,
		logger:            logger,
	}
}

// GetSettings handles GET /api/admin/settings
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Current(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /api/admin/settings
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch domain.SettingsPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	settings, err := h.settings.Update(r.Context(), patch)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// ResetSettings handles DELETE /api/admin/settings
func (h *AdminHandler) ResetSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.Reset(r.Context()); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, domain.DefaultSettings())
}

// Regenerate handles POST /api/admin/regenerate?force=bool
func (h *AdminHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, h.logger, apperrors.NewValidationError("force must be a boolean", map[string]interface{}{
				"force": raw,
			}))
			return
		}
		force = parsed
	}

	ctx := r.Context()
	if h.regenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.regenerateTimeout)
		defer cancel()
	}

	summary, err := h.seeder.RegenerateAll(ctx, force)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// PurgeThrottle handles DELETE /api/admin/throttle
func (h *AdminHandler) PurgeThrottle(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.engine.PurgeThrottle(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
