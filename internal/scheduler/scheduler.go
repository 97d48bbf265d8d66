// Package scheduler runs batch scoring on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Scheduled run statuses recorded in metrics.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ErrDuplicateSchedule is returned when a timeframe is scheduled twice.
var ErrDuplicateSchedule = errors.New("timeframe already scheduled")

// BatchRunner is the part of the service the scheduler drives.
type BatchRunner interface {
	RunBatch(ctx context.Context, tf model.Timeframe, period model.Period) (model.BatchReport, error)
}

// Schedule binds a timeframe to a cron expression ("0 2 * * 1", "@daily").
type Schedule struct {
	Timeframe model.Timeframe `koanf:"timeframe" json:"timeframe"`
	Spec      string          `koanf:"spec" json:"spec"`
}

// Result is the outcome of the latest run of a timeframe.
type Result struct {
	Timeframe model.Timeframe `json:"timeframe"`
	Period    model.Period    `json:"period"`
	Status    string          `json:"status"`
	Succeeded int             `json:"succeeded"`
	Degraded  int             `json:"degraded"`
	Failed    int             `json:"failed"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
}

// Scheduler triggers RunBatch for the most recently completed period of
// each scheduled timeframe.
type Scheduler struct {
	cron    *cron.Cron
	runner  BatchRunner
	logger  logger.Logger
	now     func() time.Time
	timeout time.Duration

	mu      sync.RWMutex
	entries map[model.Timeframe]cron.EntryID
	running map[model.Timeframe]bool
	last    map[model.Timeframe]Result

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Schedules are evaluated in UTC.
func New(runner BatchRunner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:  runner,
		now:     time.Now,
		entries: make(map[model.Timeframe]cron.EntryID),
		running: make(map[model.Timeframe]bool),
		last:    make(map[model.Timeframe]Result),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("scheduler")
	}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{log: s.logger}),
		cron.WithChain(cron.Recover(cronLogger{log: s.logger})),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Add registers a schedule. Seasons have no calendar shape and cannot be scheduled.
func (s *Scheduler) Add(sc Schedule) error {
	tf, err := model.ParseTimeframe(string(sc.Timeframe))
	if err != nil {
		return err
	}
	if tf == model.Season {
		return fmt.Errorf("%w: season batches cannot be scheduled", model.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[tf]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSchedule, tf)
	}
	id, err := s.cron.AddFunc(sc.Spec, func() {
		_, _ = s.RunNow(s.ctx, tf)
	})
	if err != nil {
		return fmt.Errorf("%w: schedule %q for %s: %v", model.ErrInvalidInput, sc.Spec, tf, err)
	}
	s.entries[tf] = id
	s.logger.Info(context.Background(), "batch scheduled",
		logger.String("timeframe", string(tf)), logger.String("spec", sc.Spec))
	return nil
}

// Start begins firing schedules in the background.
func (s *Scheduler) Start() {
	s.logger.Info(context.Background(), "scheduler started", logger.Int("schedules", len(s.Entries())))
	s.cron.Start()
}

// Stop halts new triggers, cancels in-flight runs once ctx expires, and
// waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		s.logger.Info(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done.Done()
		return ctx.Err()
	}
}

// Entries reports the next fire time of every schedule.
func (s *Scheduler) Entries() map[model.Timeframe]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.Timeframe]time.Time, len(s.entries))
	for tf, id := range s.entries {
		out[tf] = s.cron.Entry(id).Next
	}
	return out
}

// LastResults returns the latest result per timeframe.
func (s *Scheduler) LastResults() map[model.Timeframe]Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.Timeframe]Result, len(s.last))
	for tf, r := range s.last {
		out[tf] = r
	}
	return out
}

// RunNow runs the batch for the last completed period of tf immediately.
// A run of the same timeframe that is still in flight makes this a skip.
func (s *Scheduler) RunNow(ctx context.Context, tf model.Timeframe) (Result, error) {
	start := s.now()
	res := Result{Timeframe: tf, StartedAt: start.UTC()}

	period, err := model.LastCompletedPeriod(tf, start)
	if err != nil {
		res.Status, res.Error = StatusFailed, err.Error()
		metrics.RecordScheduledRun(string(tf), res.Status)
		return res, err
	}
	res.Period = period

	s.mu.Lock()
	if s.running[tf] {
		s.mu.Unlock()
		res.Status = StatusSkipped
		metrics.RecordScheduledRun(string(tf), res.Status)
		s.logger.Warn(ctx, "previous batch still running, skipping",
			logger.String("timeframe", string(tf)), logger.String("period", period.String()))
		return res, nil
	}
	s.running[tf] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running[tf] = false
		s.mu.Unlock()
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.runner.RunBatch(ctx, tf, period)
	res.Duration = s.now().Sub(start)
	res.Succeeded, res.Degraded, res.Failed = report.Succeeded, report.Degraded, report.Failed
	switch {
	case err != nil:
		res.Status, res.Error = StatusFailed, err.Error()
	case report.Failed > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusOK
	}

	s.mu.Lock()
	s.last[tf] = res
	s.mu.Unlock()

	metrics.RecordScheduledRun(string(tf), res.Status)
	fields := []logger.Field{
		logger.String("timeframe", string(tf)),
		logger.String("period", period.String()),
		logger.String("status", res.Status),
		logger.Int("succeeded", res.Succeeded),
		logger.Int("degraded", res.Degraded),
		logger.Int("failed", res.Failed),
		logger.Duration("duration", res.Duration),
	}
	if err != nil {
		s.logger.Error(ctx, "scheduled batch failed", append(fields, logger.Error(err))...)
	} else {
		s.logger.Info(ctx, "scheduled batch finished", fields...)
	}
	return res, err
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(context.Background(), "cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(context.Background(), "cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
