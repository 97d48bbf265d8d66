// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/pulse/internal/domain/model"
)

// EntityDependencies defines entity directory and history operations.
type EntityDependencies interface {
	UpsertEntity(ctx context.Context, e model.Entity) (model.Entity, error)
	ScoreHistory(ctx context.Context, entityID string, tf model.Timeframe, limit int) ([]model.ScoreRecord, error)
}

// EntitiesHandler handles entity requests.
type EntitiesHandler struct {
	deps EntityDependencies
}

// NewEntitiesHandler creates a new entities handler.
func NewEntitiesHandler(deps EntityDependencies) *EntitiesHandler {
	return &EntitiesHandler{deps: deps}
}

// entityRequest mirrors the OpenAPI schema for PUT /entities/{id}.
type entityRequest struct {
	Role   string `json:"role"`
	Active *bool  `json:"active"`
}

// HandleUpsert handles PUT /entities/{id}. Entities are active unless told otherwise.
func (h *EntitiesHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert_entity"
	var req entityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, op, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	e, err := h.deps.UpsertEntity(r.Context(), model.Entity{
		ID:     chi.URLParam(r, "id"),
		Role:   req.Role,
		Active: active,
	})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleHistory handles GET /entities/{id}/history?timeframe=&limit=.
func (h *EntitiesHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.score_history"
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	tf := model.Timeframe(r.URL.Query().Get("timeframe"))
	records, err := h.deps.ScoreHistory(r.Context(), chi.URLParam(r, "id"), tf, limit)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if records == nil {
		records = []model.ScoreRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

const defaultHistoryLimit = 10
