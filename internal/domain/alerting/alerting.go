// Package alerting evaluates threshold rules against trend-annotated scores.
package alerting

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/pulse/internal/domain/model"
)

// Default rule thresholds.
const (
	DefaultChangeThreshold = 5.0
	DefaultEliteThreshold  = 95.0
)

// Rule names.
const (
	RuleImprovement = "improvement"
	RuleDecline     = "decline"
	RuleElite       = "elite"
)

// Rule is one threshold check. Check returns the observed metric and whether it fired.
type Rule struct {
	Name      string
	Type      model.AlertType
	Severity  model.Severity
	Category  string
	Message   string
	Threshold float64
	Check     func(r model.ScoreRecord) (metric float64, fired bool)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithChangeThreshold sets the absolute score change for improvement and decline alerts.
func WithChangeThreshold(v float64) Option {
	return func(e *Evaluator) {
		if v > 0 {
			e.changeThreshold = v
		}
	}
}

// WithEliteThreshold sets the overall score at which the elite alert fires.
func WithEliteThreshold(v float64) Option {
	return func(e *Evaluator) {
		if v > 0 {
			e.eliteThreshold = v
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// Evaluator turns a score record into the alerts it triggers. It keeps no state.
type Evaluator struct {
	changeThreshold float64
	eliteThreshold  float64
	now             func() time.Time
	rules           []Rule
}

// NewEvaluator creates an evaluator with the default rule set.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		changeThreshold: DefaultChangeThreshold,
		eliteThreshold:  DefaultEliteThreshold,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = DefaultRules(e.changeThreshold, e.eliteThreshold)
	return e
}

// Rules returns the configured rules.
func (e *Evaluator) Rules() []Rule {
	return e.rules
}

// DefaultRules builds improvement, decline and elite rules. All three are
// independent, so one record may fire improvement and elite together.
func DefaultRules(changeThreshold, eliteThreshold float64) []Rule {
	return []Rule{
		{
			Name:      RuleImprovement,
			Type:      model.AlertPositive,
			Severity:  model.SeverityHigh,
			Category:  model.CategoryOverall,
			Message:   "significant performance improvement",
			Threshold: changeThreshold,
			Check: func(r model.ScoreRecord) (float64, bool) {
				if r.Trend.ScoreChange == nil {
					return 0, false
				}
				return *r.Trend.ScoreChange, *r.Trend.ScoreChange > changeThreshold
			},
		},
		{
			Name:      RuleDecline,
			Type:      model.AlertWarning,
			Severity:  model.SeverityHigh,
			Category:  model.CategoryOverall,
			Message:   "significant performance decline",
			Threshold: -changeThreshold,
			Check: func(r model.ScoreRecord) (float64, bool) {
				if r.Trend.ScoreChange == nil {
					return 0, false
				}
				return *r.Trend.ScoreChange, *r.Trend.ScoreChange < -changeThreshold
			},
		},
		{
			Name:      RuleElite,
			Type:      model.AlertPositive,
			Severity:  model.SeverityHigh,
			Category:  model.CategoryOverall,
			Message:   "elite performance",
			Threshold: eliteThreshold,
			Check: func(r model.ScoreRecord) (float64, bool) {
				return r.OverallScore, r.OverallScore >= eliteThreshold
			},
		},
	}
}

// Evaluate returns one alert per fired rule, dated at the period end so a
// re-run of the same period produces the same dedupe keys.
func (e *Evaluator) Evaluate(r model.ScoreRecord) []model.AlertRecord {
	var out []model.AlertRecord
	for _, rule := range e.rules {
		metric, fired := rule.Check(r)
		if !fired {
			continue
		}
		out = append(out, model.AlertRecord{
			ID:             uuid.NewString(),
			EntityID:       r.EntityID,
			Rule:           rule.Name,
			Type:           rule.Type,
			Severity:       rule.Severity,
			Category:       rule.Category,
			Message:        rule.Message,
			MetricValue:    metric,
			ThresholdValue: rule.Threshold,
			AlertDate:      model.Date(r.Period.End),
			Timeframe:      r.Timeframe,
			Period:         r.Period,
			IsActive:       true,
			CreatedAt:      e.now().UTC(),
		})
	}
	return out
}
