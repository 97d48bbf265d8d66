package model

import "time"

// CategoryWeight is one entry of a profile's ordered weight vector.
type CategoryWeight struct {
	Category string  `json:"category" yaml:"category"`
	Weight   float64 `json:"weight" yaml:"weight"`
}

// WeightProfile is a versioned, immutable set of category weights plus
// optional per-role multipliers. At most one profile is active at a time.
type WeightProfile struct {
	Version         string                        `json:"version" yaml:"version"`
	Description     string                        `json:"description,omitempty" yaml:"description"`
	Weights         []CategoryWeight              `json:"weights" yaml:"weights"`
	RoleAdjustments map[string]map[string]float64 `json:"role_adjustments,omitempty" yaml:"role_adjustments"`
	Active          bool                          `json:"active" yaml:"-"`
	CreatedAt       time.Time                     `json:"created_at" yaml:"-"`
	ActivatedAt     *time.Time                    `json:"activated_at,omitempty" yaml:"-"`
}

// Categories returns the profile's categories in declaration order.
func (p WeightProfile) Categories() []string {
	out := make([]string, len(p.Weights))
	for i, w := range p.Weights {
		out[i] = w.Category
	}
	return out
}

// Entity is a tracked subject in the entity directory.
type Entity struct {
	ID        string    `json:"id"`
	Role      string    `json:"role,omitempty"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryScoreSet is the normalized per-category input for one entity and period.
type CategoryScoreSet struct {
	SubmissionID string             `json:"submission_id,omitempty"`
	EntityID     string             `json:"entity_id"`
	Timeframe    Timeframe          `json:"timeframe"`
	Period       Period             `json:"period"`
	Scores       map[string]float64 `json:"scores"`
	SampleSize   int                `json:"sample_size"`
	SubmittedAt  time.Time          `json:"submitted_at"`
}
