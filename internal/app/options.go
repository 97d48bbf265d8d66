package service

import (
	"time"

	"github.com/okian/pulse/internal/adapters/repository"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the in-process alert and submission guards.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTargetSampleSize sets the sample size at which confidence stops growing.
func WithTargetSampleSize(n int) Option {
	return func(s *Service) {
		s.targetSampleSize = n
	}
}

// WithWeightTolerance sets the allowed deviation of a profile's weight sum from 1.
func WithWeightTolerance(tol float64) Option {
	return func(s *Service) {
		if tol > 0 {
			s.weightTolerance = tol
		}
	}
}

// WithTrendEpsilon sets the dead band for a stable trend.
func WithTrendEpsilon(eps float64) Option {
	return func(s *Service) {
		if eps >= 0 {
			s.trendEpsilon = eps
		}
	}
}

// WithAlertThresholds sets the score-change and elite thresholds.
func WithAlertThresholds(change, elite float64) Option {
	return func(s *Service) {
		if change > 0 {
			s.changeThreshold = change
		}
		if elite > 0 {
			s.eliteThreshold = elite
		}
	}
}

// WithMaxHistoryLimit caps ScoreHistory results.
func WithMaxHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxHistoryLimit = n
		}
	}
}

// WithBootstrapProfiles registers profiles at Start and activates active
// when no profile is active yet.
func WithBootstrapProfiles(profiles []model.WeightProfile, active string) Option {
	return func(s *Service) {
		s.profiles = profiles
		s.activeProfile = active
	}
}

// WithClock replaces time.Now, mostly useful in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
