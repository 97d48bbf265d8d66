package loadgen

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pulse/internal/domain/model"
)

// Categories scored for every synthetic entity.
var Categories = []string{"technical", "physical", "mental", "tactical"}

// Roles handed out round-robin; "keeper" carries a role adjustment in the
// generated profile.
var roles = []string{"", "winger", "keeper", "midfielder"}

// Performance tiers, as [min, max) of a category score.
var tiers = [][2]float64{
	{40, 70}, // average, most common
	{70, 90}, // high
	{10, 40}, // low
	{90, 100},
	{60, 80},
	{30, 50},
	{0, 100}, // anything
}

// entity is a synthetic population member with a stable base level.
type entity struct {
	ID   string
	Role string
	base float64
}

// generator produces reproducible populations and score sets.
type generator struct {
	rng *rand.Rand
}

func newGenerator(seed uint64) *generator {
	return &generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// population builds n entities. The first one is always elite so every
// run has at least one alert to look for.
func (g *generator) population(n int) []entity {
	out := make([]entity, n)
	for i := range out {
		tier := tiers[g.rng.IntN(len(tiers))]
		if i == 0 {
			tier = [2]float64{97, 99}
		}
		out[i] = entity{
			ID:   fmt.Sprintf("lg-%04d", i),
			Role: roles[i%len(roles)],
			base: tier[0] + g.rng.Float64()*(tier[1]-tier[0]),
		}
	}
	return out
}

// scoreSet draws one period's category scores around the entity's base.
// The elite entity stays above 96 on every category.
func (g *generator) scoreSet(e entity, week model.Period) scoreSet {
	scores := make(map[string]float64, len(Categories))
	for _, c := range Categories {
		v := e.base + g.rng.NormFloat64()*6
		if e.base >= 97 {
			v = e.base + g.rng.Float64()
		}
		scores[c] = clamp(v)
	}
	return scoreSet{
		SubmissionID: uuid.NewString(),
		EntityID:     e.ID,
		Timeframe:    string(model.Weekly),
		PeriodStart:  week.Start.Format(model.DateLayout),
		PeriodEnd:    week.End.Format(model.DateLayout),
		Scores:       scores,
		SampleSize:   5 + g.rng.IntN(10),
	}
}

// weeks returns n consecutive weekly periods starting at first.
func weeks(first time.Time, n int) []model.Period {
	out := make([]model.Period, n)
	for i := range out {
		start := model.Date(first).AddDate(0, 0, 7*i)
		out[i] = model.Period{Start: start, End: start.AddDate(0, 0, 6)}
	}
	return out
}

// defaultProfile weighs the generated categories and discounts the
// physical score of keepers.
func defaultProfile(version string) model.WeightProfile {
	return model.WeightProfile{
		Version:     version,
		Description: "generated by loadgen",
		Weights: []model.CategoryWeight{
			{Category: "technical", Weight: 0.35},
			{Category: "physical", Weight: 0.25},
			{Category: "mental", Weight: 0.2},
			{Category: "tactical", Weight: 0.2},
		},
		RoleAdjustments: map[string]map[string]float64{
			"keeper": {"physical": 0.5},
		},
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
