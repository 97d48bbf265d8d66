package loadgen

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging initializes the global logger on stderr, teeing into
// logFile when one is given.
func SetupLogging(logFile, format string) (io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, file)
		closer = file
	}
	if err := logger.Init(logger.WithFormat(format), logger.WithWriter(out)); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return closer, nil
}

// DefaultFirstWeek returns the Monday that makes n weeks end with the last
// completed week before now.
func DefaultFirstWeek(now time.Time, n int) time.Time {
	last, err := model.LastCompletedPeriod(model.Weekly, now)
	if err != nil {
		return time.Time{}
	}
	return last.Start.AddDate(0, 0, -7*(n-1))
}

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	os.Stdout.WriteString(`Pulse Load Generator
====================

Registers a synthetic population, submits weekly score sets, runs a batch
per week and verifies the results through the API.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -entities int
        Size of the synthetic population (default 500)
  -weeks int
        Consecutive weeks to submit and score (default 4)
  -first-week string
        Monday of the first week, YYYY-MM-DD (default: ends with last week)
  -workers int
        Number of concurrent requests (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed uint
        Seed of the score generator (default 1)
  -profile string
        Profile version to create when none is active (default "loadgen-v1")
  -log string
        Also write logs to this file
  -verbose
        Log every batch report
  -help
        Show this help message

Examples:
  # Score the last four weeks for 500 entities
  go run ./cmd/loadgen

  # A larger, reproducible run
  go run ./cmd/loadgen -entities 5000 -weeks 8 -seed 42 -workers 32
`)
}
