// Package weights validates weight profiles and resolves role-adjusted weights.
package weights

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/okian/pulse/internal/domain/model"
)

// DefaultTolerance is the accepted deviation of a weight vector's sum from 1.
const DefaultTolerance = 1e-3

// ErrDegenerateAdjustment reports a role whose multipliers zero out every weight.
// Resolve falls back to the base weights when it returns this error.
var ErrDegenerateAdjustment = errors.New("role adjustment zeroes every weight")

// Validate checks a profile's structure and that its weights sum to 1 within tolerance.
func Validate(p model.WeightProfile, tolerance float64) error {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if strings.TrimSpace(p.Version) == "" {
		return fmt.Errorf("%w: profile version is required", model.ErrInvalidWeights)
	}
	if len(p.Weights) == 0 {
		return fmt.Errorf("%w: profile %q has no categories", model.ErrInvalidWeights, p.Version)
	}

	seen := make(map[string]struct{}, len(p.Weights))
	sum := 0.0
	for _, w := range p.Weights {
		if strings.TrimSpace(w.Category) == "" {
			return fmt.Errorf("%w: profile %q has an unnamed category", model.ErrInvalidWeights, p.Version)
		}
		if _, dup := seen[w.Category]; dup {
			return fmt.Errorf("%w: profile %q lists category %q twice", model.ErrInvalidWeights, p.Version, w.Category)
		}
		seen[w.Category] = struct{}{}
		if math.IsNaN(w.Weight) || math.IsInf(w.Weight, 0) || w.Weight < 0 {
			return fmt.Errorf("%w: profile %q category %q has weight %v",
				model.ErrInvalidWeights, p.Version, w.Category, w.Weight)
		}
		sum += w.Weight
	}
	if math.Abs(sum-1) > tolerance {
		return &model.InvalidWeightsError{Version: p.Version, Sum: sum, Expected: 1}
	}

	for role, multipliers := range p.RoleAdjustments {
		for category, m := range multipliers {
			if math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
				return fmt.Errorf("%w: profile %q role %q category %q has multiplier %v",
					model.ErrInvalidWeights, p.Version, role, category, m)
			}
		}
	}
	return nil
}

// Base returns the profile's weights keyed by category.
func Base(p model.WeightProfile) map[string]float64 {
	out := make(map[string]float64, len(p.Weights))
	for _, w := range p.Weights {
		out[w.Category] = w.Weight
	}
	return out
}

// Resolve returns the effective weights for role. Roles without an adjustment
// entry get the base weights. Otherwise each weight is multiplied by the role's
// multiplier (1.0 when unlisted) and the vector is renormalized to sum to 1.
func Resolve(p model.WeightProfile, role string) (map[string]float64, error) {
	base := Base(p)
	multipliers, ok := p.RoleAdjustments[role]
	if role == "" || !ok || len(multipliers) == 0 {
		return base, nil
	}

	adjusted := make(map[string]float64, len(base))
	sum := 0.0
	for category, w := range base {
		m, listed := multipliers[category]
		if !listed {
			m = 1.0
		}
		adjusted[category] = w * m
		sum += w * m
	}
	if sum <= 0 {
		return base, fmt.Errorf("%w: profile %q role %q", ErrDegenerateAdjustment, p.Version, role)
	}
	for category := range adjusted {
		adjusted[category] /= sum
	}
	return adjusted, nil
}

// Sum adds up a weight vector.
func Sum(w map[string]float64) float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}
