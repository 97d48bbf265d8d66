// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/pulse/internal/domain/model"
)

// ProfileDependencies defines the weight profile operations.
type ProfileDependencies interface {
	CreateWeightProfile(ctx context.Context, p model.WeightProfile) (model.WeightProfile, error)
	ListWeightProfiles(ctx context.Context) ([]model.WeightProfile, error)
	ActiveWeightProfile(ctx context.Context) (model.WeightProfile, error)
	ActivateWeightProfile(ctx context.Context, version string) error
}

// ProfilesHandler handles weight profile requests.
type ProfilesHandler struct {
	deps ProfileDependencies
}

// NewProfilesHandler creates a new profiles handler.
func NewProfilesHandler(deps ProfileDependencies) *ProfilesHandler {
	return &ProfilesHandler{deps: deps}
}

// profileRequest mirrors the OpenAPI schema for POST /profiles.
type profileRequest struct {
	Version         string                        `json:"version"`
	Description     string                        `json:"description"`
	Weights         []model.CategoryWeight        `json:"weights"`
	RoleAdjustments map[string]map[string]float64 `json:"role_adjustments"`
}

// HandleCreate handles POST /profiles.
func (h *ProfilesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_profile"
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, op, err)
		return
	}
	p, err := h.deps.CreateWeightProfile(r.Context(), model.WeightProfile{
		Version:         req.Version,
		Description:     req.Description,
		Weights:         req.Weights,
		RoleAdjustments: req.RoleAdjustments,
	})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleList handles GET /profiles.
func (h *ProfilesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.deps.ListWeightProfiles(r.Context())
	if err != nil {
		writeServiceError(w, "api.list_profiles", err)
		return
	}
	if profiles == nil {
		profiles = []model.WeightProfile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

// HandleActive handles GET /profiles/active. No active profile is a 404.
func (h *ProfilesHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.ActiveWeightProfile(r.Context())
	if err != nil {
		if errors.Is(err, model.ErrNoActiveProfile) {
			writeError(w, http.StatusNotFound, "not_found", Wrap("api.active_profile", err))
			return
		}
		writeServiceError(w, "api.active_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleActivate handles POST /profiles/{version}/activate.
func (h *ProfilesHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	if err := h.deps.ActivateWeightProfile(r.Context(), version); err != nil {
		writeServiceError(w, "api.activate_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated", "version": version})
}
