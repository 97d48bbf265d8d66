// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/pulse/internal/domain/model"
)

// ScoreDependencies defines score ingestion and single-entity computation.
type ScoreDependencies interface {
	SubmitScores(ctx context.Context, set model.CategoryScoreSet) (model.CategoryScoreSet, bool, error)
	ComputeScore(ctx context.Context, entityID string, tf model.Timeframe, period model.Period) (model.ScoreRecord, error)
}

// ScoresHandler handles score requests.
type ScoresHandler struct {
	deps ScoreDependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// scoreSetRequest mirrors the OpenAPI schema for POST /scores.
type scoreSetRequest struct {
	SubmissionID string             `json:"submission_id"`
	EntityID     string             `json:"entity_id"`
	Scores       map[string]float64 `json:"scores"`
	SampleSize   int                `json:"sample_size"`
	periodRequest
}

type ackResponse struct {
	Status       string `json:"status"`
	Duplicate    bool   `json:"duplicate"`
	SubmissionID string `json:"submission_id"`
}

// HandleSubmit handles POST /scores. A repeated submission_id is acknowledged
// as a duplicate without storing anything.
func (h *ScoresHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_scores"
	var req scoreSetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, op, err)
		return
	}
	tf, period, err := req.parse()
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	set, duplicate, err := h.deps.SubmitScores(r.Context(), model.CategoryScoreSet{
		SubmissionID: req.SubmissionID,
		EntityID:     req.EntityID,
		Timeframe:    tf,
		Period:       period,
		Scores:       req.Scores,
		SampleSize:   req.SampleSize,
	})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, SubmissionID: set.SubmissionID})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", SubmissionID: set.SubmissionID})
}

type computeRequest struct {
	EntityID string `json:"entity_id"`
	periodRequest
}

// HandleCompute handles POST /scores/compute.
func (h *ScoresHandler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.compute_score"
	var req computeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, op, err)
		return
	}
	tf, period, err := req.parse()
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	rec, err := h.deps.ComputeScore(r.Context(), req.EntityID, tf, period)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
