// Package scoring validates category scores and combines them into a
// weighted composite score with a confidence value.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/weights"
)

// Default scoring configuration constants.
const (
	defaultTargetSampleSize = 10
)

// Round2 rounds to two decimal places, the stored precision of scores.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Aggregate is the composite result for one validated score set.
type Aggregate struct {
	Overall    float64
	Confidence float64
	Coverage   float64
	Adequacy   float64
	Present    int
	Required   int
}

// Combine computes the weighted overall score over present categories only,
// renormalizing weights over that subset, plus the confidence value.
func Combine(scores map[string]float64, w map[string]float64, sampleSize, targetSampleSize int) (Aggregate, error) {
	categories := make([]string, 0, len(w))
	for category := range w {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var weighted, weightSum float64
	present := 0
	for _, category := range categories {
		weight := w[category]
		score, ok := scores[category]
		if !ok {
			continue
		}
		present++
		weighted += weight * score
		weightSum += weight
	}
	if present == 0 || weightSum <= 0 {
		return Aggregate{}, fmt.Errorf("%w: no weighted categories present", model.ErrInsufficientData)
	}

	coverage := float64(present) / float64(len(w))
	adequacy := Adequacy(sampleSize, targetSampleSize)
	return Aggregate{
		Overall:    Round2(math.Max(minScore, math.Min(maxScore, weighted/weightSum))),
		Confidence: Confidence(coverage, adequacy),
		Coverage:   coverage,
		Adequacy:   adequacy,
		Present:    present,
		Required:   len(w),
	}, nil
}

// Adequacy saturates sample size against the target: min(1, sample/target).
// A non-positive target disables the penalty.
func Adequacy(sampleSize, targetSampleSize int) float64 {
	if targetSampleSize <= 0 {
		return 1
	}
	if sampleSize <= 0 {
		return 0
	}
	return math.Min(1, float64(sampleSize)/float64(targetSampleSize))
}

// Confidence multiplies coverage by adequacy, bounded to [0,1].
func Confidence(coverage, adequacy float64) float64 {
	c := math.Max(0, math.Min(1, coverage)) * math.Max(0, math.Min(1, adequacy))
	return math.Round(c*10000) / 10000
}

// Option applies a configuration option to the CompositeScorer.
type Option func(*CompositeScorer)

// WithTargetSampleSize sets the sample size at which confidence saturates.
func WithTargetSampleSize(n int) Option {
	return func(s *CompositeScorer) {
		s.targetSampleSize = n
	}
}

// Input is everything needed to score one entity.
type Input struct {
	Set     model.CategoryScoreSet
	Profile model.WeightProfile
	Role    string
}

// Result carries the composite plus the data-quality findings behind it.
type Result struct {
	Aggregate
	Validated
	Weights      map[string]float64
	RoleFallback bool
}

// Degraded reports whether the record should be flagged.
func (r Result) Degraded() bool {
	return r.Validated.Degraded() || r.RoleFallback
}

// DegradedReason explains the flag.
func (r Result) DegradedReason() string {
	reason := r.Validated.DegradedReason()
	if r.RoleFallback {
		if reason != "" {
			reason += "; "
		}
		reason += "role adjustment degenerate, base weights used"
	}
	return reason
}

// Scorer computes a composite score from a category score set.
type Scorer interface {
	// Score honors ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// CompositeScorer chains validation, role resolution and aggregation.
type CompositeScorer struct {
	targetSampleSize int
}

// NewCompositeScorer creates a scorer with configuration options.
func NewCompositeScorer(opts ...Option) *CompositeScorer {
	s := &CompositeScorer{targetSampleSize: defaultTargetSampleSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score validates the input, resolves the role's weights and aggregates.
// Malformed categories degrade the result; only an empty usable set fails.
func (s *CompositeScorer) Score(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context cancelled: %w", err)
	}

	validated, err := Validate(in.Set, in.Profile.Categories())
	if err != nil && !errors.Is(err, model.ErrInvalidInput) {
		return Result{}, err
	}

	w, rerr := weights.Resolve(in.Profile, in.Role)
	res := Result{
		Validated:    validated,
		Weights:      w,
		RoleFallback: errors.Is(rerr, weights.ErrDegenerateAdjustment),
	}

	agg, aerr := Combine(validated.Scores, w, validated.SampleSize, s.targetSampleSize)
	if aerr != nil {
		if res.Validated.Degraded() {
			return res, fmt.Errorf("%w (%s)", aerr, res.Validated.DegradedReason())
		}
		return res, aerr
	}
	res.Aggregate = agg
	return res, nil
}
