// Package service wires the scoring engine together and implements the
// dependencies required by the HTTP API, the CLI and the scheduler.
package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/okian/pulse/internal/adapters/mq/queue"
	"github.com/okian/pulse/internal/adapters/mq/worker"
	"github.com/okian/pulse/internal/adapters/repository"
	"github.com/okian/pulse/internal/domain/alerting"
	"github.com/okian/pulse/internal/domain/dedupe"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/scoring"
	"github.com/okian/pulse/internal/domain/trend"
	"github.com/okian/pulse/internal/domain/weights"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

const (
	defaultQueueSize       = 1024
	defaultDedupeSize      = 50000
	defaultMaxHistoryLimit = 100
)

// Service implements the scoring engine operations.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       repository.Store
	alertGuard  dedupe.Deduper
	submissions dedupe.Deduper
	jobs        *queue.InMemoryQueue
	pool        *worker.Pool
	scorer      scoring.Scorer
	analyzer    *trend.Analyzer
	evaluator   *alerting.Evaluator

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	targetSampleSize int
	weightTolerance  float64
	trendEpsilon     float64
	changeThreshold  float64
	eliteThreshold   float64
	maxHistoryLimit  int
	profiles         []model.WeightProfile
	activeProfile    string

	now func() time.Time

	// State
	started bool

	logger logger.Logger
}

// New constructs a Service. The store defaults to an in-memory one.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        defaultQueueSize,
		dedupeSize:       defaultDedupeSize,
		targetSampleSize: 10,
		weightTolerance:  weights.DefaultTolerance,
		trendEpsilon:     trend.DefaultEpsilon,
		changeThreshold:  alerting.DefaultChangeThreshold,
		eliteThreshold:   alerting.DefaultEliteThreshold,
		maxHistoryLimit:  defaultMaxHistoryLimit,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.alertGuard = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.submissions = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.scorer = scoring.NewCompositeScorer(scoring.WithTargetSampleSize(s.targetSampleSize))
	s.analyzer = trend.NewAnalyzer(trend.WithEpsilon(s.trendEpsilon))
	s.evaluator = alerting.NewEvaluator(
		alerting.WithChangeThreshold(s.changeThreshold),
		alerting.WithEliteThreshold(s.eliteThreshold),
		alerting.WithClock(s.now),
	)
	return s
}

// Start bootstraps configured profiles and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting scoring service...")

	if err := s.bootstrapProfiles(ctx); err != nil {
		return err
	}

	s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.jobs)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the worker pool and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping scoring service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "scoring service stopped")
}

// jobQueue returns the queue of a started service.
func (s *Service) jobQueue() (*queue.InMemoryQueue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.jobs, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"alertKeys":       s.alertGuard.Size(),
		"submissionsSeen": s.submissions.Size(),
	}

	if active, err := s.store.ActiveProfile(ctx); err == nil {
		stats["activeProfile"] = active.Version
	} else if !errors.Is(err, model.ErrNoActiveProfile) {
		s.logger.Warn(ctx, "active profile lookup failed", logger.Error(err))
	}

	if entities, err := s.store.ListActiveEntities(ctx); err == nil {
		stats["activeEntities"] = len(entities)
	}

	if s.started {
		queueLen := s.jobs.Len()
		stats["queueLength"] = queueLen
		stats["workers"] = s.pool.Size()
		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}
