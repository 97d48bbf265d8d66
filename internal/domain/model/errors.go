package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds shared across layers. Callers match with errors.Is.
var (
	// ErrConfiguration is fatal to a whole batch: nothing is computed.
	ErrConfiguration   = errors.New("configuration error")
	ErrNoActiveProfile = fmt.Errorf("%w: no active profile", ErrConfiguration)
	ErrInvalidWeights  = fmt.Errorf("%w: invalid weights", ErrConfiguration)

	// ErrInvalidInput and ErrInsufficientData are recovered per entity.
	ErrInvalidInput     = errors.New("invalid input")
	ErrInsufficientData = errors.New("insufficient data")

	// ErrIncompletePopulation is fatal to the ranking stage only.
	ErrIncompletePopulation = errors.New("incomplete population")

	ErrNotFound        = errors.New("not found")
	ErrProfileNotFound = fmt.Errorf("weight profile %w", ErrNotFound)
	ErrScoreNotFound   = fmt.Errorf("score record %w", ErrNotFound)
	ErrAlertNotFound   = fmt.Errorf("alert %w", ErrNotFound)
	ErrEntityNotFound  = fmt.Errorf("entity %w", ErrNotFound)

	ErrProfileExists = errors.New("weight profile already exists")
)

// InvalidWeightsError names the offending sum of a rejected weight profile.
type InvalidWeightsError struct {
	Version  string
	Sum      float64
	Expected float64
}

func (e *InvalidWeightsError) Error() string {
	return fmt.Sprintf("profile %q: weights sum to %.4f, expected %.4f", e.Version, e.Sum, e.Expected)
}

// Is reports ErrInvalidWeights and ErrConfiguration as matches.
func (e *InvalidWeightsError) Is(target error) bool {
	return target == ErrInvalidWeights || target == ErrConfiguration
}

// IncompletePopulationError reports a ranking attempt over a partial population.
type IncompletePopulationError struct {
	Timeframe Timeframe
	Period    Period
	Have      int
	Expected  int
}

func (e *IncompletePopulationError) Error() string {
	return fmt.Sprintf("incomplete population for %s %s: have %d score records, expected %d",
		e.Timeframe, e.Period, e.Have, e.Expected)
}

// Is reports ErrIncompletePopulation as a match.
func (e *IncompletePopulationError) Is(target error) bool {
	return target == ErrIncompletePopulation
}
