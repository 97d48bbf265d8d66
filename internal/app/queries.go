package service

import (
	"context"
	"fmt"

	"github.com/okian/pulse/internal/domain/model"
)

// ScoreHistory returns up to limit records of an entity, most recent period
// first. limit is capped by the configured maximum.
func (s *Service) ScoreHistory(ctx context.Context, entityID string, tf model.Timeframe, limit int) ([]model.ScoreRecord, error) {
	tf, err := model.ParseTimeframe(string(tf))
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", model.ErrInvalidInput, limit)
	}
	if limit > s.maxHistoryLimit {
		limit = s.maxHistoryLimit
	}
	return s.store.ScoreHistory(ctx, entityID, tf, limit)
}

// ActiveAlerts returns the entity's active, unacknowledged alerts dated within
// the last daysBack days (0 means today only).
func (s *Service) ActiveAlerts(ctx context.Context, entityID string, daysBack int) ([]model.AlertRecord, error) {
	if daysBack < 0 {
		return nil, fmt.Errorf("%w: days_back must not be negative, got %d", model.ErrInvalidInput, daysBack)
	}
	since := model.Date(s.now()).AddDate(0, 0, -daysBack)
	return s.store.ActiveAlerts(ctx, entityID, since)
}

// AcknowledgeAlert marks an alert acknowledged. Acknowledging twice keeps the
// first timestamp.
func (s *Service) AcknowledgeAlert(ctx context.Context, id string) (model.AlertRecord, error) {
	return s.store.AcknowledgeAlert(ctx, id, s.now().UTC())
}
