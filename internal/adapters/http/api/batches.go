// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/pulse/internal/domain/model"
)

// BatchDependencies defines the batch pipeline operations.
type BatchDependencies interface {
	RunBatch(ctx context.Context, tf model.Timeframe, period model.Period) (model.BatchReport, error)
	RankPeriod(ctx context.Context, tf model.Timeframe, period model.Period) ([]model.ScoreRecord, error)
}

// BatchesHandler handles batch requests.
type BatchesHandler struct {
	deps BatchDependencies
}

// NewBatchesHandler creates a new batches handler.
func NewBatchesHandler(deps BatchDependencies) *BatchesHandler {
	return &BatchesHandler{deps: deps}
}

// partialReport carries a batch report alongside the error that cut it short.
type partialReport struct {
	errorResponse
	Report model.BatchReport `json:"report"`
}

// HandleRun handles POST /batches. An incomplete population still returns
// the report, with status 422, since scores and trends were written.
func (h *BatchesHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.run_batch"
	var req periodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, op, err)
		return
	}
	tf, period, err := req.parse()
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	report, err := h.deps.RunBatch(r.Context(), tf, period)
	if err != nil {
		if errors.Is(err, model.ErrIncompletePopulation) {
			status, code := classify(err)
			writeJSON(w, status, partialReport{
				errorResponse: errorResponse{Code: code, Message: Wrap(op, err).Error()},
				Report:        report,
			})
			return
		}
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleRank handles POST /batches/rank, re-running the ranking pass for a
// period over whatever records it holds.
func (h *BatchesHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.rank_period"
	var req periodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, op, err)
		return
	}
	tf, period, err := req.parse()
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	records, err := h.deps.RankPeriod(r.Context(), tf, period)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if records == nil {
		records = []model.ScoreRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
