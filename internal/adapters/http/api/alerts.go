// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/pulse/internal/domain/model"
)

// AlertDependencies defines alert queries and acknowledgment.
type AlertDependencies interface {
	ActiveAlerts(ctx context.Context, entityID string, daysBack int) ([]model.AlertRecord, error)
	AcknowledgeAlert(ctx context.Context, id string) (model.AlertRecord, error)
}

// AlertsHandler handles alert requests.
type AlertsHandler struct {
	deps AlertDependencies
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(deps AlertDependencies) *AlertsHandler {
	return &AlertsHandler{deps: deps}
}

const defaultAlertDaysBack = 7

// HandleActive handles GET /entities/{id}/alerts?days_back=.
func (h *AlertsHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	const op = "api.active_alerts"
	daysBack, err := queryInt(r, "days_back", defaultAlertDaysBack)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	alerts, err := h.deps.ActiveAlerts(r.Context(), chi.URLParam(r, "id"), daysBack)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if alerts == nil {
		alerts = []model.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleAcknowledge handles POST /alerts/{id}/ack.
func (h *AlertsHandler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.AcknowledgeAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "api.acknowledge_alert", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
