package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

// historySample bounds how many entities get their history checked.
const historySample = 20

// ErrVerification marks a run whose results broke an expectation.
var ErrVerification = errors.New("verification failed")

// verify checks the batch reports and the query endpoints:
//   - every entity is scored in every week
//   - percentiles lie in [0, 100] once ranked
//   - history comes back most recent period first
//   - the elite entity has an active alert
func verify(ctx context.Context, c *client, population []entity, periods []model.Period, reports []model.BatchReport) error {
	log := logger.Get().Named("loadgen")
	var problems []error

	for i, report := range reports {
		if report.Failed > 0 {
			problems = append(problems, fmt.Errorf("%s: %d entities failed: %v", periods[i], report.Failed, report.Failures))
		}
		if !report.Ranked {
			problems = append(problems, fmt.Errorf("%s: ranking skipped", periods[i]))
		}
		for _, r := range report.Records {
			if err := checkPercentiles(r); err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", periods[i], err))
			}
		}
	}

	n := min(historySample, len(population))
	for _, e := range population[:n] {
		var history []model.ScoreRecord
		path := fmt.Sprintf("%s?timeframe=weekly&limit=%d", entityPath(e.ID, "/history"), len(periods))
		if _, err := c.do(ctx, http.MethodGet, path, nil, &history, http.StatusOK); err != nil {
			return err
		}
		if len(history) != len(periods) {
			problems = append(problems, fmt.Errorf("%s: history has %d records, want %d", e.ID, len(history), len(periods)))
			continue
		}
		for j := 1; j < len(history); j++ {
			if !history[j-1].Period.Start.After(history[j].Period.Start) {
				problems = append(problems, fmt.Errorf("%s: history not ordered most recent first", e.ID))
				break
			}
		}
	}

	var alerts []model.AlertRecord
	daysBack := 7 * (len(periods) + 1)
	path := fmt.Sprintf("%s?days_back=%d", entityPath(population[0].ID, "/alerts"), daysBack)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &alerts, http.StatusOK); err != nil {
		return err
	}
	if len(alerts) == 0 {
		problems = append(problems, fmt.Errorf("%s: elite entity has no active alerts", population[0].ID))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrVerification, errors.Join(problems...))
	}
	log.Info(ctx, "verification passed",
		logger.Int("reports", len(reports)),
		logger.Int("historiesChecked", n),
		logger.Int("eliteAlerts", len(alerts)),
	)
	return nil
}

func checkPercentiles(r model.ScoreRecord) error {
	if r.Percentiles == nil {
		return fmt.Errorf("%s: not ranked", r.EntityID)
	}
	if o := r.Percentiles.Overall; o != nil && (*o < 0 || *o > 100) {
		return fmt.Errorf("%s: overall percentile %.2f out of range", r.EntityID, *o)
	}
	for cat, p := range r.Percentiles.Categories {
		if p < 0 || p > 100 {
			return fmt.Errorf("%s: %s percentile %.2f out of range", r.EntityID, cat, p)
		}
	}
	return nil
}
