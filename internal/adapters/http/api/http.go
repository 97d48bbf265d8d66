// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/okian/pulse/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ProfileDependencies
	EntityDependencies
	ScoreDependencies
	BatchDependencies
	AlertDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	profilesHandler *ProfilesHandler
	entitiesHandler *EntitiesHandler
	scoresHandler   *ScoresHandler
	batchesHandler  *BatchesHandler
	alertsHandler   *AlertsHandler

	ingestLimiter *rate.Limiter
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		profilesHandler: NewProfilesHandler(deps),
		entitiesHandler: NewEntitiesHandler(deps),
		scoresHandler:   NewScoresHandler(deps),
		batchesHandler:  NewBatchesHandler(deps),
		alertsHandler:   NewAlertsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/profiles", func(r chi.Router) {
		r.Get("/", MetricsMiddleware(s.profilesHandler.HandleList, "profiles"))
		r.Post("/", MetricsMiddleware(s.profilesHandler.HandleCreate, "profiles"))
		r.Get("/active", MetricsMiddleware(s.profilesHandler.HandleActive, "profiles_active"))
		r.Post("/{version}/activate", MetricsMiddleware(s.profilesHandler.HandleActivate, "profiles_activate"))
	})

	r.Route("/entities/{id}", func(r chi.Router) {
		r.Put("/", MetricsMiddleware(s.entitiesHandler.HandleUpsert, "entities"))
		r.Get("/history", MetricsMiddleware(s.entitiesHandler.HandleHistory, "history"))
		r.Get("/alerts", MetricsMiddleware(s.alertsHandler.HandleActive, "alerts"))
	})

	r.With(RateLimitMiddleware(s.ingestLimiter)).
		Post("/scores", MetricsMiddleware(s.scoresHandler.HandleSubmit, "scores"))
	r.Post("/scores/compute", MetricsMiddleware(s.scoresHandler.HandleCompute, "scores_compute"))

	r.Post("/batches", MetricsMiddleware(s.batchesHandler.HandleRun, "batches"))
	r.Post("/batches/rank", MetricsMiddleware(s.batchesHandler.HandleRank, "batches_rank"))

	r.Post("/alerts/{id}/ack", MetricsMiddleware(s.alertsHandler.HandleAcknowledge, "alerts_ack"))
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates domain error kinds into HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	writeError(w, status, code, Wrap(op, err))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, model.ErrInvalidWeights):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrProfileExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrIncompletePopulation):
		return http.StatusUnprocessableEntity, "incomplete_population"
	case errors.Is(err, model.ErrInsufficientData):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusConflict, "configuration"
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
