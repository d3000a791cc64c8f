package handler

import (
	"net/http"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/service"
	"kksr-counter/internal/session"
	apperrors "kksr-counter/pkg/errors"

	"go.uber.org/zap"
)

// PageViewHandler receives page view events from the content host
type PageViewHandler struct {
	engine *service.IncrementEngine
	logger *zap.Logger
}

// NewPageViewHandler creates a new page view handler
func NewPageViewHandler(engine *service.IncrementEngine, logger *zap.Logger) *PageViewHandler {
	return &PageViewHandler{
		engine: engine,
		logger: logger,
	}
}

// PageViewRequest is the body of POST /api/pageview
type PageViewRequest struct {
	ObjectID   int64  `json:"object_id"`
	ObjectType string `json:"object_type"`
}

// PageViewResponse lists one decision per metric of the object type
type PageViewResponse struct {
	ObjectID  int64             `json:"object_id"`
	Decisions []domain.Decision `json:"decisions"`
}

// Record handles POST /api/pageview
func (h *PageViewHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req PageViewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if req.ObjectID <= 0 {
		respondError(w, r, h.logger, apperrors.NewValidationError("object_id must be positive", nil))
		return
	}

	objectType, err := domain.ParseObjectType(req.ObjectType)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	decisions, err := h.engine.OnPageView(r.Context(), domain.PageView{
		ObjectID:   req.ObjectID,
		ObjectType: objectType,
		IP:         getClientIP(r),
		UserAgent:  r.Header.Get("User-Agent"),
		Session:    session.FromContext(r.Context()),
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, PageViewResponse{
		ObjectID:  req.ObjectID,
		Decisions: decisions,
	})
}
