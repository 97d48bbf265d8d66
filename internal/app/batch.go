package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/pulse/internal/adapters/mq/worker"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/ranking"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Pipeline stage names, used in failures and metrics.
const (
	StageScore   = "score"
	StageRank    = "rank"
	StageAnalyze = "analyze"
)

// Batch run statuses recorded in metrics.
const (
	batchOK        = "ok"
	batchPartial   = "partial"
	batchFailed    = "failed"
	batchCancelled = "cancelled"
)

// RunBatch computes scores for every active entity of a period. Stage one
// runs per entity on the worker pool, the ranking pass runs once every
// stage-one job has finished, and stage three runs per entity again after
// ranking. Per-entity failures are reported, never fatal. A configuration
// error aborts before any work; an incomplete population skips ranking only.
func (s *Service) RunBatch(ctx context.Context, tf model.Timeframe, period model.Period) (report model.BatchReport, err error) {
	report.StartedAt = s.now().UTC()
	status := batchFailed
	defer func() {
		report.FinishedAt = s.now().UTC()
		metrics.RecordBatchRun(string(report.Timeframe), status)
	}()

	if report.Timeframe, err = model.ParseTimeframe(string(tf)); err != nil {
		return report, err
	}
	if report.Period, err = model.NewPeriod(period.Start, period.End); err != nil {
		return report, err
	}
	tf, period = report.Timeframe, report.Period

	jobs, err := s.jobQueue()
	if err != nil {
		return report, err
	}
	profile, err := s.activeProfileForRun(ctx)
	if err != nil {
		return report, err
	}
	report.ProfileVersion = profile.Version

	entities, err := s.store.ListActiveEntities(ctx)
	if err != nil {
		return report, err
	}
	log := s.logger.With(logger.String("timeframe", string(tf)), logger.String("period", period.String()))
	log.Info(ctx, "batch started", logger.Int("entities", len(entities)), logger.String("profile", profile.Version))

	failed := make(map[string]bool)
	fail := func(entityID, stage string, err error) {
		failed[entityID] = true
		report.Failures = append(report.Failures, model.EntityFailure{EntityID: entityID, Stage: stage, Reason: err.Error()})
	}

	// Stage one.
	var mu sync.Mutex
	records := make(map[string]model.ScoreRecord, len(entities))
	scoreStage := worker.NewStage(StageScore, jobs)
	stageStart := time.Now()
	for i, e := range entities {
		entity := e
		err := scoreStage.Go(ctx, entity.ID, func(ctx context.Context) error {
			rec, err := s.scoreEntity(ctx, profile, entity, tf, period)
			if err != nil {
				return err
			}
			mu.Lock()
			records[entity.ID] = rec
			mu.Unlock()
			return nil
		})
		if err != nil && ctx.Err() != nil {
			for _, rest := range entities[i+1:] {
				fail(rest.ID, StageScore, ctx.Err())
			}
			break
		}
	}
	for _, o := range scoreStage.Wait() {
		if o.Err != nil {
			fail(o.EntityID, StageScore, o.Err)
		}
	}
	metrics.RecordStageLatency(StageScore, float64(time.Since(stageStart).Milliseconds()))

	if err := ctx.Err(); err != nil {
		for _, id := range sortedKeys(records) {
			if !failed[id] {
				fail(id, StageAnalyze, err)
			}
		}
		status = batchCancelled
		s.finishReport(&report, failed, records, nil)
		return report, err
	}

	// Ranking, behind the stage-one barrier. Entities that failed stage one
	// never write a record, so they are not expected in the population.
	report.Expected = len(entities) - len(failed)
	stageStart = time.Now()
	members := make(map[string]bool, len(records))
	for id := range records {
		members[id] = true
	}
	ranked, rankErr := s.rankPeriod(ctx, tf, period, members, report.Expected)
	metrics.RecordStageLatency(StageRank, float64(time.Since(stageStart).Milliseconds()))
	if rankErr != nil {
		log.Error(ctx, "ranking skipped", logger.Error(rankErr))
	} else {
		report.Ranked = true
		for _, r := range ranked {
			if rec, ok := records[r.EntityID]; ok {
				rec.Percentiles = r.Percentiles
				records[r.EntityID] = rec
			}
		}
	}

	// Stage three, behind the ranking barrier.
	var alerts []model.AlertRecord
	analyzeStage := worker.NewStage(StageAnalyze, jobs)
	stageStart = time.Now()
	pending := make([]model.ScoreRecord, 0, len(records))
	for _, id := range sortedKeys(records) {
		pending = append(pending, records[id])
	}
	for i, rec := range pending {
		rec := rec
		err := analyzeStage.Go(ctx, rec.EntityID, func(ctx context.Context) error {
			out, emitted, err := s.analyzeEntity(ctx, rec)
			mu.Lock()
			defer mu.Unlock()
			records[out.EntityID] = out
			alerts = append(alerts, emitted...)
			return err
		})
		if err != nil && ctx.Err() != nil {
			for _, rest := range pending[i+1:] {
				fail(rest.EntityID, StageAnalyze, ctx.Err())
			}
			break
		}
	}
	for _, o := range analyzeStage.Wait() {
		if o.Err != nil {
			fail(o.EntityID, StageAnalyze, o.Err)
		}
	}
	metrics.RecordStageLatency(StageAnalyze, float64(time.Since(stageStart).Milliseconds()))

	s.finishReport(&report, failed, records, alerts)
	switch {
	case ctx.Err() != nil:
		status = batchCancelled
		return report, ctx.Err()
	case rankErr != nil:
		return report, rankErr
	case report.Failed > 0:
		status = batchPartial
	default:
		status = batchOK
	}
	log.Info(ctx, "batch finished",
		logger.Int("succeeded", report.Succeeded),
		logger.Int("degraded", report.Degraded),
		logger.Int("failed", report.Failed),
		logger.Int("alerts", len(report.Alerts)),
		logger.Bool("ranked", report.Ranked),
	)
	return report, nil
}

// finishReport buckets every entity of the run exactly once: failed when a
// failure was recorded for it, degraded or succeeded by its record otherwise.
func (s *Service) finishReport(report *model.BatchReport, failed map[string]bool, records map[string]model.ScoreRecord, alerts []model.AlertRecord) {
	report.Failed = len(failed)
	for _, id := range sortedKeys(records) {
		rec := records[id]
		switch {
		case failed[id]:
		case rec.Degraded:
			report.Degraded++
		default:
			report.Succeeded++
		}
		report.Records = append(report.Records, rec)
	}
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].EntityID < report.Failures[j].EntityID
	})
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].EntityID != alerts[j].EntityID {
			return alerts[i].EntityID < alerts[j].EntityID
		}
		return alerts[i].Rule < alerts[j].Rule
	})
	report.Alerts = alerts
}

// RankPeriod re-runs the ranking pass over the stored records of the
// period's currently active entities.
func (s *Service) RankPeriod(ctx context.Context, tf model.Timeframe, period model.Period) ([]model.ScoreRecord, error) {
	tf, err := model.ParseTimeframe(string(tf))
	if err != nil {
		return nil, err
	}
	if period, err = model.NewPeriod(period.Start, period.End); err != nil {
		return nil, err
	}
	entities, err := s.store.ListActiveEntities(ctx)
	if err != nil {
		return nil, err
	}
	members := make(map[string]bool, len(entities))
	for _, e := range entities {
		members[e.ID] = true
	}
	return s.rankPeriod(ctx, tf, period, members, 0)
}

// rankPeriod ranks the stored records of members for a period and writes
// the percentiles back. Records of other entities, such as ones deactivated
// or failing this run, stay out of the population. It refuses to rank fewer
// records than expected.
func (s *Service) rankPeriod(ctx context.Context, tf model.Timeframe, period model.Period, members map[string]bool, expected int) ([]model.ScoreRecord, error) {
	have, err := s.store.CountPeriodScores(ctx, tf, period)
	if err != nil {
		return nil, err
	}
	if have < expected {
		return nil, &model.IncompletePopulationError{Timeframe: tf, Period: period, Have: have, Expected: expected}
	}

	stored, err := s.store.ListPeriodScores(ctx, tf, period)
	if err != nil {
		return nil, err
	}
	records := stored[:0]
	for _, r := range stored {
		if members[r.EntityID] {
			records = append(records, r)
		}
	}
	if len(records) < expected {
		return nil, &model.IncompletePopulationError{Timeframe: tf, Period: period, Have: len(records), Expected: expected}
	}

	percentiles := ranking.Rank(records)
	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := percentiles[records[i].EntityID]
		if err := s.store.UpdatePercentiles(ctx, records[i].Key(), p); err != nil {
			return nil, err
		}
		records[i].Percentiles = &p
	}
	metrics.UpdatePopulationSize(string(tf), len(records))
	return records, nil
}

func sortedKeys(m map[string]model.ScoreRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
