package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/middleware"
	apperrors "kksr-counter/pkg/errors"

	"go.uber.org/zap"
)

// SuccessResponse is the JSON envelope of every successful response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SuccessResponse{Success: true, Data: data})
}

// respondError writes err as an AppError envelope. Internal causes are
// logged, never returned to the client.
func respondError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	appErr := toAppError(err)
	requestID := middleware.GetRequestID(r.Context())

	if appErr.StatusCode >= http.StatusInternalServerError {
		log.Error("Request failed",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	var resp apperrors.ErrorResponse
	resp.Error.Type = appErr.Type
	resp.Error.Message = appErr.Message
	resp.Error.Details = appErr.Details
	resp.Error.RequestID = requestID
	resp.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	json.NewEncoder(w).Encode(resp)
}

// toAppError maps service and domain errors onto the AppError taxonomy
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrObjectNotFound):
		return apperrors.NewNotFoundError("Object not found")
	case errors.Is(err, domain.ErrUnknownObjectType), errors.Is(err, domain.ErrUnknownMetric):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, domain.ErrRetryable):
		return apperrors.NewUnavailableError("Service temporarily unavailable", err)
	default:
		return apperrors.NewInternalError("Internal server error", err)
	}
}

// getClientIP returns the client address, preferring proxy headers
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (for Cloud Run)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return normalizeIP(ip)
		}
	}

	// Check X-Real-IP header
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return normalizeIP(xri)
	}

	// Fall back to RemoteAddr
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return normalizeIP(ip)
}

func normalizeIP(ip string) string {
	ip = strings.Trim(ip, "[]")
	if ip == "::1" {
		return "127.0.0.1"
	}
	return ip
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidationError("Invalid request body", map[string]interface{}{
			"body": err.Error(),
		})
	}
	return nil
}
