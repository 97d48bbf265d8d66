package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okian/pulse/internal/domain/model"
)

// Score bounds of the canonical range.
const (
	minScore = 0.0
	maxScore = 100.0
)

// Clamp records a score that was pulled back into range.
type Clamp struct {
	Category string
	Raw      float64
	Value    float64
}

// Rejection records a category dropped for being structurally invalid.
type Rejection struct {
	Category string
	Reason   string
}

// Validated is a category score set after range checks.
type Validated struct {
	Scores     map[string]float64 // usable, in-range scores of profile categories
	SampleSize int
	Missing    []string // profile categories absent from the input
	Unknown    []string // input categories the profile does not know
	Clamped    []Clamp
	Rejected   []Rejection
}

// Degraded reports whether any input had to be discarded.
func (v Validated) Degraded() bool {
	return len(v.Rejected) > 0
}

// DegradedReason summarizes the rejections.
func (v Validated) DegradedReason() string {
	if len(v.Rejected) == 0 {
		return ""
	}
	parts := make([]string, len(v.Rejected))
	for i, r := range v.Rejected {
		parts[i] = r.Category + ": " + r.Reason
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Validate clamps in-range problems and drops malformed categories of set
// against the profile categories. It returns ErrInvalidInput alongside a
// usable result when anything was dropped; callers continue with a degraded
// record rather than aborting.
func Validate(set model.CategoryScoreSet, categories []string) (Validated, error) {
	known := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		known[c] = struct{}{}
	}

	v := Validated{
		Scores:     make(map[string]float64, len(categories)),
		SampleSize: set.SampleSize,
	}
	if set.SampleSize < 0 {
		v.Rejected = append(v.Rejected, Rejection{Category: "sample_size", Reason: fmt.Sprintf("negative value %d", set.SampleSize)})
		v.SampleSize = 0
	}

	names := make([]string, 0, len(set.Scores))
	for name := range set.Scores {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw := set.Scores[name]
		switch {
		case strings.TrimSpace(name) == "":
			v.Rejected = append(v.Rejected, Rejection{Category: "(empty)", Reason: "empty category name"})
			continue
		case math.IsNaN(raw) || math.IsInf(raw, 0):
			v.Rejected = append(v.Rejected, Rejection{Category: name, Reason: "non-numeric score"})
			continue
		}
		if _, ok := known[name]; !ok {
			v.Unknown = append(v.Unknown, name)
			continue
		}
		value := math.Max(minScore, math.Min(maxScore, raw))
		if value != raw {
			v.Clamped = append(v.Clamped, Clamp{Category: name, Raw: raw, Value: value})
		}
		v.Scores[name] = value
	}

	for _, c := range categories {
		if _, ok := v.Scores[c]; ok {
			continue
		}
		if rejectedCategory(v.Rejected, c) {
			continue
		}
		v.Missing = append(v.Missing, c)
	}

	if v.Degraded() {
		return v, fmt.Errorf("%w: entity %s: %s", model.ErrInvalidInput, set.EntityID, v.DegradedReason())
	}
	return v, nil
}

func rejectedCategory(rs []Rejection, category string) bool {
	for _, r := range rs {
		if r.Category == category {
			return true
		}
	}
	return false
}
