// Package repository persists weight profiles, entities, score inputs,
// score records and alerts. Every implementation enforces the same
// invariants: one record per score key, one alert per dedupe key and at
// most one active weight profile.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/metrics"
)

// ProfileStore persists versioned weight profiles.
type ProfileStore interface {
	// CreateProfile fails with model.ErrProfileExists for a known version.
	CreateProfile(ctx context.Context, p model.WeightProfile) error
	GetProfile(ctx context.Context, version string) (model.WeightProfile, error)
	ListProfiles(ctx context.Context) ([]model.WeightProfile, error)
	// ActivateProfile makes version the only active profile in one transaction.
	ActivateProfile(ctx context.Context, version string, at time.Time) error
	// ActiveProfile fails with model.ErrNoActiveProfile when none is active.
	ActiveProfile(ctx context.Context) (model.WeightProfile, error)
}

// EntityStore is the directory of tracked entities.
type EntityStore interface {
	UpsertEntity(ctx context.Context, e model.Entity) error
	GetEntity(ctx context.Context, id string) (model.Entity, error)
	ListActiveEntities(ctx context.Context) ([]model.Entity, error)
}

// InputStore holds submitted category score sets.
type InputStore interface {
	// PutScoreSet replaces the set for its (entity, timeframe, period).
	PutScoreSet(ctx context.Context, set model.CategoryScoreSet) error
	GetScoreSet(ctx context.Context, key model.ScoreKey) (model.CategoryScoreSet, error)
}

// ScoreStore persists score records.
type ScoreStore interface {
	// UpsertScore writes r by key. An existing record keeps its CreatedAt and
	// loses its percentiles and trend, which later writes recompute.
	UpsertScore(ctx context.Context, r model.ScoreRecord) (model.ScoreRecord, error)
	GetScore(ctx context.Context, key model.ScoreKey) (model.ScoreRecord, error)
	ListPeriodScores(ctx context.Context, tf model.Timeframe, p model.Period) ([]model.ScoreRecord, error)
	CountPeriodScores(ctx context.Context, tf model.Timeframe, p model.Period) (int, error)
	UpdatePercentiles(ctx context.Context, key model.ScoreKey, p model.Percentiles) error
	UpdateTrend(ctx context.Context, key model.ScoreKey, t model.Trend) error
	// PreviousScore returns the entity's record with the greatest period start
	// strictly before before, or model.ErrScoreNotFound.
	PreviousScore(ctx context.Context, entityID string, tf model.Timeframe, before time.Time) (model.ScoreRecord, error)
	// ScoreHistory returns at most limit records, most recent period first.
	ScoreHistory(ctx context.Context, entityID string, tf model.Timeframe, limit int) ([]model.ScoreRecord, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	// InsertAlert reports false when an alert with the same dedupe key exists.
	InsertAlert(ctx context.Context, a model.AlertRecord) (bool, error)
	// ActiveAlerts lists active, unacknowledged alerts dated on or after since,
	// newest date first and then by severity.
	ActiveAlerts(ctx context.Context, entityID string, since time.Time) ([]model.AlertRecord, error)
	AcknowledgeAlert(ctx context.Context, id string, at time.Time) (model.AlertRecord, error)
}

// Store is the full persistence contract.
type Store interface {
	ProfileStore
	EntityStore
	InputStore
	ScoreStore
	AlertStore
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory   = driverMemory
	DriverSQLite   = driverSQLite
	DriverPostgres = driverPostgres
)

// Open returns the Store for driver. dsn is the SQLite path or the Postgres
// connection string and is ignored for the memory driver.
func Open(ctx context.Context, driver, dsn string, maxConns int32) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLite(ctx, dsn)
	case DriverPostgres:
		return NewPostgres(ctx, dsn, maxConns)
	default:
		return nil, fmt.Errorf("unknown store driver %q: %w", driver, model.ErrConfiguration)
	}
}

// observe records latency and failures of one store operation.
func observe(driver, op string, start time.Time, err error) {
	metrics.RecordRepositoryQueryLatency(driver, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordRepositoryError(driver, op)
	}
}
