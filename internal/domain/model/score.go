package model

import "time"

// TrendDirection classifies score movement against the previous period.
type TrendDirection string

// Trend directions. Unknown means there was no previous period to compare with.
const (
	TrendUp      TrendDirection = "up"
	TrendDown    TrendDirection = "down"
	TrendStable  TrendDirection = "stable"
	TrendUnknown TrendDirection = "unknown"
)

// ScoreKey identifies a score record.
type ScoreKey struct {
	EntityID  string
	Timeframe Timeframe
	Period    Period
}

// Percentiles holds the population ranks of a record. Nil until ranked,
// and Overall stays nil for a population of one.
type Percentiles struct {
	Overall    *float64           `json:"overall"`
	Categories map[string]float64 `json:"categories,omitempty"`
}

// Trend holds the comparison against the previous period.
type Trend struct {
	Direction     TrendDirection `json:"direction"`
	Strength      float64        `json:"strength"`
	PreviousScore *float64       `json:"previous_score"`
	ScoreChange   *float64       `json:"score_change"`
}

// ScoreRecord is the composite score of one entity for one period.
type ScoreRecord struct {
	EntityID        string             `json:"entity_id"`
	Timeframe       Timeframe          `json:"timeframe"`
	Period          Period             `json:"period"`
	OverallScore    float64            `json:"overall_score"`
	ConfidenceScore float64            `json:"confidence_score"`
	CategoryScores  map[string]float64 `json:"category_scores"`
	Percentiles     *Percentiles       `json:"percentiles"`
	Trend           Trend              `json:"trend"`
	SampleSize      int                `json:"sample_size"`
	ProfileVersion  string             `json:"profile_version"`
	Role            string             `json:"role,omitempty"`
	Degraded        bool               `json:"degraded"`
	DegradedReason  string             `json:"degraded_reason,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Key returns the record's unique key.
func (r ScoreRecord) Key() ScoreKey {
	return ScoreKey{EntityID: r.EntityID, Timeframe: r.Timeframe, Period: r.Period}
}

// EntityFailure explains why an entity has no clean record in a batch.
type EntityFailure struct {
	EntityID string `json:"entity_id"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

// BatchReport summarizes a batch run. Every active entity lands in exactly
// one of Succeeded, Degraded or Failed, and each failed entity has one entry
// in Failures.
type BatchReport struct {
	Timeframe      Timeframe       `json:"timeframe"`
	Period         Period          `json:"period"`
	ProfileVersion string          `json:"profile_version"`
	Expected       int             `json:"expected"`
	Succeeded      int             `json:"succeeded"`
	Degraded       int             `json:"degraded"`
	Failed         int             `json:"failed"`
	Ranked         bool            `json:"ranked"`
	Failures       []EntityFailure `json:"failures"`
	Records        []ScoreRecord   `json:"records"`
	Alerts         []AlertRecord   `json:"alerts"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}
