package model

import (
	"strings"
	"time"
)

// AlertType is the polarity of an alert.
type AlertType string

// Alert types.
const (
	AlertPositive AlertType = "positive"
	AlertNegative AlertType = "negative"
	AlertWarning  AlertType = "warning"
	AlertNeutral  AlertType = "neutral"
)

// Severity of an alert.
type Severity string

// Severities, ordered high to low.
const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Rank orders severities for sorting; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// CategoryOverall is the alert category for composite-score rules.
const CategoryOverall = "overall"

// AlertRecord is a threshold-triggered event about one entity.
type AlertRecord struct {
	ID             string     `json:"id"`
	EntityID       string     `json:"entity_id"`
	Rule           string     `json:"rule"`
	Type           AlertType  `json:"alert_type"`
	Severity       Severity   `json:"severity"`
	Category       string     `json:"category"`
	Message        string     `json:"message"`
	MetricValue    float64    `json:"metric_value"`
	ThresholdValue float64    `json:"threshold_value"`
	AlertDate      time.Time  `json:"alert_date"`
	Timeframe      Timeframe  `json:"timeframe"`
	Period         Period     `json:"period"`
	IsActive       bool       `json:"is_active"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DedupeKey identifies a distinct rule firing for an entity on a date.
func (a AlertRecord) DedupeKey() string {
	return strings.Join([]string{
		a.EntityID, a.Rule, string(a.Type), a.Category, a.AlertDate.Format(DateLayout),
	}, "|")
}
