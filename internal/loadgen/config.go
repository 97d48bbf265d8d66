package loadgen

import (
	"fmt"
	"time"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL   string        // Base URL of the service
	Entities  int           // Size of the synthetic population
	Weeks     int           // Consecutive weekly periods to submit and score
	FirstWeek time.Time     // Monday of the first period
	Workers   int           // Concurrent HTTP requests
	Timeout   time.Duration // HTTP request timeout
	Seed      uint64        // Seed of the score generator
	Profile   string        // Profile version created when none is active
	Verbose   bool          // Log every batch report
}

// Validate checks the run can make sense.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("base url is required")
	case c.Entities < 2:
		return fmt.Errorf("need at least 2 entities, got %d", c.Entities)
	case c.Weeks < 1:
		return fmt.Errorf("need at least 1 week, got %d", c.Weeks)
	case c.Workers < 1:
		return fmt.Errorf("need at least 1 worker, got %d", c.Workers)
	case c.FirstWeek.Weekday() != time.Monday:
		return fmt.Errorf("first week must start on a Monday, got %s", c.FirstWeek.Weekday())
	}
	return nil
}

// scoreSet is the wire shape of POST /scores.
type scoreSet struct {
	SubmissionID string             `json:"submission_id"`
	EntityID     string             `json:"entity_id"`
	Timeframe    string             `json:"timeframe"`
	PeriodStart  string             `json:"period_start"`
	PeriodEnd    string             `json:"period_end"`
	Scores       map[string]float64 `json:"scores"`
	SampleSize   int                `json:"sample_size"`
}

type periodRequest struct {
	Timeframe   string `json:"timeframe"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

type ackResponse struct {
	Status       string `json:"status"`
	Duplicate    bool   `json:"duplicate"`
	SubmissionID string `json:"submission_id"`
}

// Stats holds run statistics.
type Stats struct {
	EntitiesRegistered int
	SetsSubmitted      int
	SetsAccepted       int
	SetsDuplicate      int
	SetsFailed         int
	BatchesRun         int
	RecordsScored      int
	AlertsRaised       int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
