package handler

import (
	"net/http"
	"strconv"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/repository"
	"kksr-counter/internal/service"
	apperrors "kksr-counter/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ObjectHandler serves counters of posts and products and the save hook
type ObjectHandler struct {
	objects  repository.ObjectRepository
	counters *service.CounterStore
	cache    *service.CacheService
	seeder   *service.Seeder
	logger   *zap.Logger
}

// NewObjectHandler creates a new object handler
func NewObjectHandler(objects repository.ObjectRepository, counters *service.CounterStore, cache *service.CacheService, seeder *service.Seeder, logger *zap.Logger) *ObjectHandler {
	return &ObjectHandler{
		objects:  objects,
		counters: counters,
		cache:    cache,
		seeder:   seeder,
		logger:   logger,
	}
}

// CountersResponse is the display view of an object's counters
type CountersResponse struct {
	ObjectID      int64             `json:"object_id"`
	ObjectType    domain.ObjectType `json:"object_type"`
	RatingCount   int64             `json:"rating_count"`
	RatingAverage float64           `json:"rating_average"`
	TotalSales    *int64            `json:"total_sales,omitempty"`
}

// SavedRequest is the body of POST /api/objects/{objectID}/saved
type SavedRequest struct {
	ObjectType string `json:"object_type"`
	Status     string `json:"status"`
}

// GetCounters handles GET /api/objects/{objectID}/counters
func (h *ObjectHandler) GetCounters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	objectID, err := objectIDParam(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	obj, err := h.objects.Get(ctx, objectID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	state, err := h.cache.GetCountersWithCache(ctx, objectID, h.counters.Get)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	resp := CountersResponse{
		ObjectID:      obj.ID,
		ObjectType:    obj.Type,
		RatingCount:   state.RatingCount,
		RatingAverage: state.DisplayAverage(),
	}
	if obj.Type.SupportsMetric(domain.MetricSales) {
		sales := state.Sales
		resp.TotalSales = &sales
	}

	respondJSON(w, http.StatusOK, resp)
}

// Saved handles POST /api/objects/{objectID}/saved
func (h *ObjectHandler) Saved(w http.ResponseWriter, r *http.Request) {
	objectID, err := objectIDParam(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req SavedRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	objectType, err := domain.ParseObjectType(req.ObjectType)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	status := req.Status
	if status == "" {
		status = repository.StatusPublished
	}

	result, err := h.seeder.OnSave(r.Context(), domain.Object{
		ID:     objectID,
		Type:   objectType,
		Status: status,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func objectIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "objectID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("Invalid object id", map[string]interface{}{
			"object_id": raw,
		})
	}
	return id, nil
}
