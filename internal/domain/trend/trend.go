// Package trend classifies score movement between consecutive periods.
package trend

import (
	"math"

	"github.com/okian/pulse/internal/domain/model"
)

// Defaults for trend classification. The epsilon is a direction dead band
// and is unrelated to alert thresholds.
const (
	DefaultEpsilon = 0.1
	MaxStrength    = 10.0
)

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithEpsilon sets the dead band inside which a change counts as stable.
func WithEpsilon(eps float64) Option {
	return func(a *Analyzer) {
		if eps >= 0 {
			a.epsilon = eps
		}
	}
}

// Analyzer compares a current score with the entity's previous period.
type Analyzer struct {
	epsilon float64
}

// NewAnalyzer creates an analyzer with configuration options.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{epsilon: DefaultEpsilon}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze classifies the change from previous to current. With no previous
// score the direction is unknown and change stays nil.
func (a *Analyzer) Analyze(current float64, previous *float64) model.Trend {
	if previous == nil {
		return model.Trend{Direction: model.TrendUnknown}
	}

	prev := *previous
	change := math.Round((current-prev)*100) / 100

	dir := model.TrendStable
	switch {
	case change > a.epsilon:
		dir = model.TrendUp
	case change < -a.epsilon:
		dir = model.TrendDown
	}

	return model.Trend{
		Direction:     dir,
		Strength:      math.Max(-MaxStrength, math.Min(MaxStrength, change)),
		PreviousScore: &prev,
		ScoreChange:   &change,
	}
}
