package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/loadgen"
)

// Default configuration constants.
const (
	defaultEntities    = 500
	defaultWeeks       = 4
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		entities  = flag.Int("entities", defaultEntities, "Size of the synthetic population")
		weeks     = flag.Int("weeks", defaultWeeks, "Consecutive weeks to submit and score")
		firstWeek = flag.String("first-week", "", "Monday of the first week, YYYY-MM-DD")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent requests")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed      = flag.Uint64("seed", 1, "Seed of the score generator")
		profile   = flag.String("profile", "loadgen-v1", "Profile version to create when none is active")
		logFile   = flag.String("log", "", "Also write logs to this file")
		logFormat = flag.String("log-format", "text", "Log format: text or json")
		verbose   = flag.Bool("verbose", false, "Log every batch report")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return 0
	}

	closer, err := loadgen.SetupLogging(*logFile, *logFormat)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return 1
	}
	defer closer.Close()

	first := loadgen.DefaultFirstWeek(time.Now(), *weeks)
	if *firstWeek != "" {
		first, err = time.Parse(model.DateLayout, *firstWeek)
		if err != nil {
			os.Stderr.WriteString("Invalid -first-week: " + err.Error() + "\n")
			return 2
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	config := &loadgen.Config{
		BaseURL:   *baseURL,
		Entities:  *entities,
		Weeks:     *weeks,
		FirstWeek: first,
		Workers:   *workers,
		Timeout:   *timeout,
		Seed:      *seed,
		Profile:   *profile,
		Verbose:   *verbose,
	}

	if _, err := loadgen.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		return 1
	}
	return 0
}
