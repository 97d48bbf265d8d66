package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/scoring"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// ComputeScore scores one entity for a period, then derives its trend and
// alerts. Percentiles are left to the batch ranking pass, which needs the
// whole population.
func (s *Service) ComputeScore(ctx context.Context, entityID string, tf model.Timeframe, period model.Period) (model.ScoreRecord, error) {
	tf, err := model.ParseTimeframe(string(tf))
	if err != nil {
		return model.ScoreRecord{}, err
	}
	if period, err = model.NewPeriod(period.Start, period.End); err != nil {
		return model.ScoreRecord{}, err
	}
	profile, err := s.activeProfileForRun(ctx)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	entity, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return model.ScoreRecord{}, err
	}

	rec, err := s.scoreEntity(ctx, profile, entity, tf, period)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	rec, _, err = s.analyzeEntity(ctx, rec)
	return rec, err
}

// scoreEntity is stage one for one entity: validate, adjust, aggregate and
// upsert. It writes nothing when the entity has no usable data.
func (s *Service) scoreEntity(ctx context.Context, profile model.WeightProfile, entity model.Entity, tf model.Timeframe, period model.Period) (model.ScoreRecord, error) {
	start := time.Now()
	log := s.logger.With(logger.String("entityID", entity.ID), logger.String("period", period.String()))

	set, err := s.store.GetScoreSet(ctx, model.ScoreKey{EntityID: entity.ID, Timeframe: tf, Period: period})
	if errors.Is(err, model.ErrNotFound) {
		metrics.RecordScoreComputed(string(tf), metrics.OutcomeFailed)
		return model.ScoreRecord{}, fmt.Errorf("%w: no score set submitted for %s", model.ErrInsufficientData, entity.ID)
	}
	if err != nil {
		metrics.RecordScoreComputed(string(tf), metrics.OutcomeFailed)
		return model.ScoreRecord{}, err
	}

	res, err := s.scorer.Score(ctx, scoring.Input{Set: set, Profile: profile, Role: entity.Role})
	s.logDataQuality(ctx, log, res)
	if err != nil {
		metrics.RecordScoreComputed(string(tf), metrics.OutcomeFailed)
		return model.ScoreRecord{}, err
	}

	now := s.now().UTC()
	rec, err := s.store.UpsertScore(ctx, model.ScoreRecord{
		EntityID:        entity.ID,
		Timeframe:       tf,
		Period:          period,
		OverallScore:    res.Overall,
		ConfidenceScore: res.Confidence,
		CategoryScores:  res.Scores,
		SampleSize:      res.SampleSize,
		ProfileVersion:  profile.Version,
		Role:            entity.Role,
		Degraded:        res.Degraded(),
		DegradedReason:  res.DegradedReason(),
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		metrics.RecordScoreComputed(string(tf), metrics.OutcomeFailed)
		return model.ScoreRecord{}, err
	}

	outcome := metrics.OutcomeOK
	if rec.Degraded {
		outcome = metrics.OutcomeDegraded
	}
	metrics.RecordScoreComputed(string(tf), outcome)
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	log.Debug(ctx, "score computed",
		logger.Float64("overall", rec.OverallScore),
		logger.Float64("confidence", rec.ConfidenceScore),
	)
	return rec, nil
}

// logDataQuality reports clamped, unknown, malformed and missing categories.
func (s *Service) logDataQuality(ctx context.Context, log logger.Logger, res scoring.Result) {
	for _, c := range res.Clamped {
		log.Warn(ctx, "category score clamped",
			logger.String("category", c.Category),
			logger.Float64("raw", c.Raw),
			logger.Float64("value", c.Value),
		)
	}
	for _, r := range res.Rejected {
		log.Warn(ctx, "malformed category dropped",
			logger.String("category", r.Category),
			logger.String("reason", r.Reason),
		)
	}
	for _, c := range res.Unknown {
		log.Warn(ctx, "unknown category ignored", logger.String("category", c))
	}
	if res.RoleFallback {
		log.Warn(ctx, "degenerate role adjustment, base weights used")
	}
	if len(res.Missing) > 0 {
		log.Debug(ctx, "categories missing", logger.Any("categories", res.Missing))
	}
}

// analyzeEntity is stage three for one entity: compare with the previous
// period, write the trend and emit new alerts.
func (s *Service) analyzeEntity(ctx context.Context, rec model.ScoreRecord) (model.ScoreRecord, []model.AlertRecord, error) {
	var previous *float64
	prev, err := s.store.PreviousScore(ctx, rec.EntityID, rec.Timeframe, rec.Period.Start)
	switch {
	case err == nil:
		previous = &prev.OverallScore
	case errors.Is(err, model.ErrScoreNotFound):
	default:
		return rec, nil, err
	}

	rec.Trend = s.analyzer.Analyze(rec.OverallScore, previous)
	if err := s.store.UpdateTrend(ctx, rec.Key(), rec.Trend); err != nil {
		return rec, nil, err
	}

	var emitted []model.AlertRecord
	for _, a := range s.evaluator.Evaluate(rec) {
		key := a.DedupeKey()
		if s.alertGuard.SeenAndRecord(ctx, key) {
			metrics.RecordAlertDuplicate()
			continue
		}
		inserted, err := s.store.InsertAlert(ctx, a)
		if err != nil {
			s.alertGuard.Unrecord(ctx, key)
			return rec, emitted, err
		}
		if !inserted {
			metrics.RecordAlertDuplicate()
			continue
		}
		metrics.RecordAlertEmitted(a.Rule)
		s.logger.Info(ctx, "alert emitted",
			logger.String("entityID", a.EntityID),
			logger.String("rule", a.Rule),
			logger.Float64("metric", a.MetricValue),
		)
		emitted = append(emitted, a)
	}
	return rec, emitted, nil
}
