// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for period boundaries and alert dates.
const DateLayout = "2006-01-02"

// Timeframe is the granularity of a scoring period.
type Timeframe string

// Supported timeframes.
const (
	Daily   Timeframe = "daily"
	Weekly  Timeframe = "weekly"
	Monthly Timeframe = "monthly"
	Season  Timeframe = "season"
)

// ParseTimeframe validates s as a known timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToLower(strings.TrimSpace(s))); tf {
	case Daily, Weekly, Monthly, Season:
		return tf, nil
	default:
		return "", fmt.Errorf("%w: unknown timeframe %q", ErrInvalidInput, s)
	}
}

// Period is a concrete, inclusive date range of a timeframe.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewPeriod builds a period from two dates, rejecting inverted ranges.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: Date(start), End: Date(end)}
	if start.IsZero() || end.IsZero() {
		return Period{}, fmt.Errorf("%w: period bounds are required", ErrInvalidInput)
	}
	if p.End.Before(p.Start) {
		return Period{}, fmt.Errorf("%w: period end %s before start %s",
			ErrInvalidInput, p.End.Format(DateLayout), p.Start.Format(DateLayout))
	}
	return p, nil
}

// ParsePeriod parses YYYY-MM-DD bounds.
func ParsePeriod(start, end string) (Period, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return Period{}, fmt.Errorf("%w: period start: %v", ErrInvalidInput, err)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return Period{}, fmt.Errorf("%w: period end: %v", ErrInvalidInput, err)
	}
	return NewPeriod(s, e)
}

func (p Period) String() string {
	return p.Start.Format(DateLayout) + ".." + p.End.Format(DateLayout)
}

// PeriodContaining returns the calendar period of tf that contains t.
// Weeks start on Monday. Seasons have no calendar shape and are rejected.
func PeriodContaining(tf Timeframe, t time.Time) (Period, error) {
	d := Date(t)
	switch tf {
	case Daily:
		return Period{Start: d, End: d}, nil
	case Weekly:
		offset := (int(d.Weekday()) + 6) % 7
		start := d.AddDate(0, 0, -offset)
		return Period{Start: start, End: start.AddDate(0, 0, 6)}, nil
	case Monthly:
		start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: start.AddDate(0, 1, -1)}, nil
	default:
		return Period{}, fmt.Errorf("%w: timeframe %q has no calendar period", ErrInvalidInput, tf)
	}
}

// LastCompletedPeriod returns the most recent period of tf that ended before now's day.
func LastCompletedPeriod(tf Timeframe, now time.Time) (Period, error) {
	current, err := PeriodContaining(tf, now)
	if err != nil {
		return Period{}, err
	}
	return PeriodContaining(tf, current.Start.AddDate(0, 0, -1))
}
