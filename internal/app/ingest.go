package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Submission outcomes recorded in metrics.
const (
	submissionAccepted  = "accepted"
	submissionDuplicate = "duplicate"
	submissionFailed    = "failed"
)

// UpsertEntity registers or updates an entity in the directory.
func (s *Service) UpsertEntity(ctx context.Context, e model.Entity) (model.Entity, error) {
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		return model.Entity{}, fmt.Errorf("%w: entity id is required", model.ErrInvalidInput)
	}
	e.Role = strings.TrimSpace(e.Role)
	e.UpdatedAt = s.now().UTC()
	if err := s.store.UpsertEntity(ctx, e); err != nil {
		return model.Entity{}, err
	}
	return e, nil
}

// SubmitScores stores a category score set for later scoring. Submissions are
// idempotent by SubmissionID: a repeated id reports duplicate and changes nothing.
// An empty id is replaced by a fresh one.
func (s *Service) SubmitScores(ctx context.Context, set model.CategoryScoreSet) (model.CategoryScoreSet, bool, error) {
	set.EntityID = strings.TrimSpace(set.EntityID)
	if set.EntityID == "" {
		return set, false, fmt.Errorf("%w: entity_id is required", model.ErrInvalidInput)
	}
	tf, err := model.ParseTimeframe(string(set.Timeframe))
	if err != nil {
		return set, false, err
	}
	set.Timeframe = tf
	period, err := model.NewPeriod(set.Period.Start, set.Period.End)
	if err != nil {
		return set, false, err
	}
	set.Period = period
	if len(set.Scores) == 0 {
		return set, false, fmt.Errorf("%w: scores are required", model.ErrInvalidInput)
	}
	if set.SubmissionID == "" {
		set.SubmissionID = uuid.NewString()
	}

	if s.submissions.SeenAndRecord(ctx, set.SubmissionID) {
		metrics.RecordSubmission(submissionDuplicate)
		s.logger.Debug(ctx, "duplicate submission skipped",
			logger.String("submissionID", set.SubmissionID),
			logger.String("entityID", set.EntityID),
		)
		return set, true, nil
	}

	set.SubmittedAt = s.now().UTC()
	if err := s.store.PutScoreSet(ctx, set); err != nil {
		s.submissions.Unrecord(ctx, set.SubmissionID)
		metrics.RecordSubmission(submissionFailed)
		return set, false, err
	}
	metrics.RecordSubmission(submissionAccepted)
	return set, false, nil
}
