// Package ranking computes population percentile ranks for a period.
package ranking

import (
	"github.com/okian/pulse/internal/domain/model"
)

// Rank assigns every record its percentile on the overall score and on each
// category independently. Entities lacking a category are left out of that
// category's population. Ties share the percentile of the values strictly
// below them. The result is keyed by entity id.
func Rank(records []model.ScoreRecord) map[string]model.Percentiles {
	overall := NewIndex()
	byCategory := make(map[string]*Index)
	for _, r := range records {
		overall.Insert(r.EntityID, r.OverallScore)
		for category, score := range r.CategoryScores {
			ix, ok := byCategory[category]
			if !ok {
				ix = NewIndex()
				byCategory[category] = ix
			}
			ix.Insert(r.EntityID, score)
		}
	}

	out := make(map[string]model.Percentiles, len(records))
	for _, r := range records {
		p := model.Percentiles{
			Overall:    overall.Percentile(r.OverallScore),
			Categories: make(map[string]float64, len(r.CategoryScores)),
		}
		for category, score := range r.CategoryScores {
			if v := byCategory[category].Percentile(score); v != nil {
				p.Categories[category] = *v
			}
		}
		out[r.EntityID] = p
	}
	return out
}
