// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loading layers a YAML file and PULSE_ environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/pulse/internal/domain/model"
)

// Store drivers accepted by store_driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the alert and submission guards.
	DedupeSize int `koanf:"dedupe_size"`

	// StoreDriver selects persistence: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	DatabaseURL string `koanf:"database_url"`
	DBMaxConns  int32  `koanf:"db_max_conns"`

	// TargetSampleSize is the sample size at which confidence reaches 1.
	TargetSampleSize int     `koanf:"target_sample_size"`
	WeightTolerance  float64 `koanf:"weight_tolerance"`
	TrendEpsilon     float64 `koanf:"trend_epsilon"`

	Alerts Alerts `koanf:"alerts"`

	// MaxHistoryLimit caps the history endpoint's limit.
	MaxHistoryLimit int `koanf:"max_history_limit"`

	// IngestRatePerSec and IngestBurst throttle score submissions. Zero disables.
	IngestRatePerSec float64 `koanf:"ingest_rate_per_sec"`
	IngestBurst      int     `koanf:"ingest_burst"`

	// Schedules run batches for the last completed period of a timeframe.
	Schedules []Schedule `koanf:"schedules"`

	// ActiveProfile is activated on startup when no profile is active yet.
	ActiveProfile string    `koanf:"active_profile"`
	Profiles      []Profile `koanf:"profiles"`
}

// Alerts holds alert rule thresholds.
type Alerts struct {
	ChangeThreshold float64 `koanf:"change_threshold"`
	EliteThreshold  float64 `koanf:"elite_threshold"`
}

// Schedule is a cron expression for a timeframe.
type Schedule struct {
	Timeframe string `koanf:"timeframe"`
	Spec      string `koanf:"spec"`
}

// Profile is a weight profile declared in configuration.
type Profile struct {
	Version         string                        `koanf:"version"`
	Description     string                        `koanf:"description"`
	Weights         []Weight                      `koanf:"weights"`
	RoleAdjustments map[string]map[string]float64 `koanf:"role_adjustments"`
}

// Weight is one category weight of a Profile.
type Weight struct {
	Category string  `koanf:"category"`
	Weight   float64 `koanf:"weight"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		QueueSize:        1024,
		WorkerCount:      runtime.NumCPU() * 2,
		DedupeSize:       50_000,
		StoreDriver:      DriverMemory,
		SQLitePath:       "pulse.db",
		DBMaxConns:       10,
		TargetSampleSize: 10,
		WeightTolerance:  0.001,
		TrendEpsilon:     0.1,
		Alerts: Alerts{
			ChangeThreshold: 5.0,
			EliteThreshold:  95.0,
		},
		MaxHistoryLimit:  100,
		IngestRatePerSec: 0,
		IngestBurst:      50,
	}
}

// Validate checks the invariants Load relies on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.TargetSampleSize < 0:
		return fmt.Errorf("%w: target_sample_size must not be negative", ErrInvalidConfig)
	case c.WeightTolerance <= 0:
		return fmt.Errorf("%w: weight_tolerance must be positive", ErrInvalidConfig)
	case c.TrendEpsilon < 0:
		return fmt.Errorf("%w: trend_epsilon must not be negative", ErrInvalidConfig)
	case c.Alerts.ChangeThreshold <= 0:
		return fmt.Errorf("%w: alerts.change_threshold must be positive", ErrInvalidConfig)
	case c.Alerts.EliteThreshold < 0 || c.Alerts.EliteThreshold > 100:
		return fmt.Errorf("%w: alerts.elite_threshold must be within [0, 100]", ErrInvalidConfig)
	case c.MaxHistoryLimit <= 0:
		return fmt.Errorf("%w: max_history_limit must be positive", ErrInvalidConfig)
	case c.IngestRatePerSec < 0 || c.IngestBurst < 0:
		return fmt.Errorf("%w: ingest rate and burst must not be negative", ErrInvalidConfig)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite driver", ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url is required for the postgres driver", ErrInvalidConfig)
		}
		if c.DBMaxConns <= 0 {
			return fmt.Errorf("%w: db_max_conns must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}

	for i, s := range c.Schedules {
		if _, err := model.ParseTimeframe(s.Timeframe); err != nil {
			return fmt.Errorf("%w: schedules[%d]: %v", ErrInvalidConfig, i, err)
		}
		if strings.TrimSpace(s.Spec) == "" {
			return fmt.Errorf("%w: schedules[%d]: spec must not be empty", ErrInvalidConfig, i)
		}
	}

	versions := make(map[string]bool, len(c.Profiles))
	for i, p := range c.Profiles {
		if p.Version == "" {
			return fmt.Errorf("%w: profiles[%d]: version must not be empty", ErrInvalidConfig, i)
		}
		if versions[p.Version] {
			return fmt.Errorf("%w: profiles[%d]: duplicate version %q", ErrInvalidConfig, i, p.Version)
		}
		versions[p.Version] = true
	}
	if c.ActiveProfile != "" && !versions[c.ActiveProfile] {
		return fmt.Errorf("%w: active_profile %q is not declared in profiles", ErrInvalidConfig, c.ActiveProfile)
	}
	return nil
}

// WeightProfiles converts the declared profiles to domain profiles.
// Weight sums are checked later by the service.
func (c *Config) WeightProfiles() []model.WeightProfile {
	out := make([]model.WeightProfile, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		wp := model.WeightProfile{
			Version:         p.Version,
			Description:     p.Description,
			Weights:         make([]model.CategoryWeight, len(p.Weights)),
			RoleAdjustments: p.RoleAdjustments,
		}
		for i, w := range p.Weights {
			wp.Weights[i] = model.CategoryWeight{Category: w.Category, Weight: w.Weight}
		}
		out = append(out, wp)
	}
	return out
}
