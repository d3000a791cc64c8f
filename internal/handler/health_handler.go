package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"kksr-counter/internal/container"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	logger.Debug("Health check requested")

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "kksr-counter",
		Checks:    map[string]string{},
	}
	status := http.StatusOK

	if h.container.HasDatabase() {
		if err := h.container.DB.Health(ctx); err != nil {
			logger.WithError(err).Error("Database health check failed")
			response.Checks["database"] = "unhealthy"
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		} else {
			response.Checks["database"] = "healthy"
		}
	} else {
		response.Checks["database"] = "memory"
	}

	// Redis only backs session marks and caching; losing it degrades the service
	if h.container.HasRedis() {
		if err := h.container.Services.Cache.HealthCheck(ctx); err != nil {
			response.Checks["redis"] = "unhealthy"
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
		} else {
			response.Checks["redis"] = "healthy"
		}
	} else {
		response.Checks["redis"] = "disabled"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.WithError(err).Error("Failed to encode health check response")
		return
	}

	logger.Debug("Health check completed")
}
