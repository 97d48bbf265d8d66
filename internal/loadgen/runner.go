package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

// Run executes a complete load run against a live service: it registers a
// synthetic population, submits score sets for consecutive weeks, runs a
// batch per week and verifies what the API reports back.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("loadgen")
	c := newClient(config.BaseURL, config.Timeout)
	gen := newGenerator(config.Seed)

	log.Info(ctx, "starting load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("entities", config.Entities),
		logger.Int("weeks", config.Weeks),
		logger.Int("workers", config.Workers),
	)

	// Step 1: Check service health
	if _, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Make sure a profile is active
	if err := ensureProfile(ctx, c, config.Profile); err != nil {
		return stats, fmt.Errorf("profile setup failed: %w", err)
	}

	// Step 3: Register the population
	population := gen.population(config.Entities)
	if err := registerEntities(ctx, c, config.Workers, population); err != nil {
		return stats, fmt.Errorf("entity registration failed: %w", err)
	}
	stats.EntitiesRegistered = len(population)

	// Step 4: Submit and score each week
	periods := weeks(config.FirstWeek, config.Weeks)
	reports := make([]model.BatchReport, 0, len(periods))
	for _, week := range periods {
		sets := make([]scoreSet, len(population))
		for i, e := range population {
			sets[i] = gen.scoreSet(e, week)
		}
		if err := submitSets(ctx, c, config.Workers, sets, stats); err != nil {
			return stats, fmt.Errorf("submission for %s failed: %w", week, err)
		}

		report, err := runBatch(ctx, c, week)
		if err != nil {
			return stats, fmt.Errorf("batch for %s failed: %w", week, err)
		}
		stats.BatchesRun++
		stats.RecordsScored += len(report.Records)
		stats.AlertsRaised += len(report.Alerts)
		reports = append(reports, report)

		fields := []logger.Field{
			logger.String("period", week.String()),
			logger.Int("succeeded", report.Succeeded),
			logger.Int("degraded", report.Degraded),
			logger.Int("failed", report.Failed),
			logger.Int("alerts", len(report.Alerts)),
		}
		if config.Verbose {
			log.Info(ctx, "batch finished", fields...)
		} else {
			log.Debug(ctx, "batch finished", fields...)
		}
	}

	// Step 5: Verify results
	if err := verify(ctx, c, population, periods, reports); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

// runBatch scores one week. An incomplete population comes back as 422
// with the report attached, which verification then flags.
func runBatch(ctx context.Context, c *client, week model.Period) (model.BatchReport, error) {
	req := periodRequest{
		Timeframe:   string(model.Weekly),
		PeriodStart: week.Start.Format(model.DateLayout),
		PeriodEnd:   week.End.Format(model.DateLayout),
	}
	var raw json.RawMessage
	code, err := c.do(ctx, http.MethodPost, "/batches", req, &raw, http.StatusOK, http.StatusUnprocessableEntity)
	if err != nil {
		return model.BatchReport{}, err
	}

	var report model.BatchReport
	if code == http.StatusUnprocessableEntity {
		var partial struct {
			Report model.BatchReport `json:"report"`
		}
		err = json.Unmarshal(raw, &partial)
		report = partial.Report
	} else {
		err = json.Unmarshal(raw, &report)
	}
	if err != nil {
		return model.BatchReport{}, fmt.Errorf("decode batch report: %w", err)
	}
	return report, nil
}

// ensureProfile creates and activates version unless a profile is already active.
func ensureProfile(ctx context.Context, c *client, version string) error {
	var active model.WeightProfile
	code, err := c.do(ctx, http.MethodGet, "/profiles/active", nil, &active, http.StatusOK)
	if err == nil {
		logger.Get().Info(ctx, "using active profile", logger.String("version", active.Version))
		return nil
	}
	if code != http.StatusNotFound {
		return err
	}

	p := defaultProfile(version)
	code, err = c.do(ctx, http.MethodPost, "/profiles", p, nil, http.StatusCreated)
	if err != nil && code != http.StatusConflict {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/profiles/"+version+"/activate", nil, nil, http.StatusOK)
	return err
}

// registerEntities upserts the population with bounded concurrency.
func registerEntities(ctx context.Context, c *client, workers int, population []entity) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, e := range population {
		g.Go(func() error {
			body := map[string]any{"role": e.Role, "active": true}
			_, err := c.do(gctx, http.MethodPut, entityPath(e.ID, ""), body, nil, http.StatusOK)
			return err
		})
	}
	return g.Wait()
}

// submitSets posts score sets concurrently. Individual failures are
// counted; only cancellation aborts.
func submitSets(ctx context.Context, c *client, workers int, sets []scoreSet, stats *Stats) error {
	var accepted, duplicate, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, set := range sets {
		g.Go(func() error {
			var ack ackResponse
			code, err := c.do(gctx, http.MethodPost, "/scores", set, &ack, http.StatusAccepted, http.StatusOK)
			switch {
			case err != nil:
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				atomic.AddInt64(&failed, 1)
			case code == http.StatusOK && ack.Duplicate:
				atomic.AddInt64(&duplicate, 1)
			default:
				atomic.AddInt64(&accepted, 1)
			}
			return nil
		})
	}
	err := g.Wait()

	stats.SetsSubmitted += len(sets)
	stats.SetsAccepted += int(accepted)
	stats.SetsDuplicate += int(duplicate)
	stats.SetsFailed += int(failed)
	return err
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var setsPerSecond float64
	if stats.Duration > 0 {
		setsPerSecond = float64(stats.SetsSubmitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("entitiesRegistered", stats.EntitiesRegistered),
		logger.Int("setsSubmitted", stats.SetsSubmitted),
		logger.Int("setsAccepted", stats.SetsAccepted),
		logger.Int("setsDuplicate", stats.SetsDuplicate),
		logger.Int("setsFailed", stats.SetsFailed),
		logger.Int("batchesRun", stats.BatchesRun),
		logger.Int("recordsScored", stats.RecordsScored),
		logger.Int("alertsRaised", stats.AlertsRaised),
		logger.Duration("duration", stats.Duration),
		logger.Float64("setsPerSecond", setsPerSecond),
	)
}
