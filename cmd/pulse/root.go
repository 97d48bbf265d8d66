package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/pulse/internal/adapters/repository"
	service "github.com/okian/pulse/internal/app"
	"github.com/okian/pulse/internal/config"
	"github.com/okian/pulse/pkg/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Composite scoring and trend analytics engine",
	Long: `Pulse combines per-category scores into weighted composite scores,
ranks them within each period's population, tracks period-over-period
trends and raises alerts on notable changes.

Configuration comes from defaults, the YAML file named by PULSE_CONFIG and
PULSE_* environment variables, in that order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(os.Stderr)); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		if err := logger.SetLevelString(cfg.LogLevel); err != nil {
			logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
				logger.String("log_level", cfg.LogLevel), logger.Error(err))
			_ = logger.SetLevelString("info")
		}
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = logger.Sync()
	},
}

// startService opens the configured store and starts a service over it.
// Callers must Stop the service, which also closes the store.
func startService(ctx context.Context) (*service.Service, error) {
	dsn := cfg.SQLitePath
	if cfg.StoreDriver == config.DriverPostgres {
		dsn = cfg.DatabaseURL
	}
	store, err := repository.Open(ctx, cfg.StoreDriver, dsn, cfg.DBMaxConns)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	svc := service.New(
		service.WithStore(store),
		service.WithLogger(logger.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithTargetSampleSize(cfg.TargetSampleSize),
		service.WithWeightTolerance(cfg.WeightTolerance),
		service.WithTrendEpsilon(cfg.TrendEpsilon),
		service.WithAlertThresholds(cfg.Alerts.ChangeThreshold, cfg.Alerts.EliteThreshold),
		service.WithMaxHistoryLimit(cfg.MaxHistoryLimit),
		service.WithBootstrapProfiles(cfg.WeightProfiles(), cfg.ActiveProfile),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("start service: %w", err)
	}
	return svc, nil
}
