package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/okian/pulse/internal/adapters/http/api"
	"github.com/okian/pulse/internal/adapters/http/swagger"
	service "github.com/okian/pulse/internal/app"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/scheduler"
	"github.com/okian/pulse/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 5 * time.Minute
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the batch scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log := logger.Get()

		svc, err := startService(ctx)
		if err != nil {
			return err
		}
		defer svc.Stop()

		sched := scheduler.New(svc, scheduler.WithLogger(logger.Named("scheduler")))
		for _, s := range cfg.Schedules {
			if err := sched.Add(scheduler.Schedule{Timeframe: model.Timeframe(s.Timeframe), Spec: s.Spec}); err != nil {
				return err
			}
		}

		addr := serveAddr
		if addr == "" {
			addr = cfg.Addr
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           newRouter(ctx, svc),
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info(gctx, "starting HTTP server", logger.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "http server")
			}
			return nil
		})
		g.Go(func() error {
			sched.Start()
			<-gctx.Done()
			log.Info(gctx, "shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := sched.Stop(shutdownCtx); err != nil {
				log.Warn(shutdownCtx, "scheduler stop incomplete", logger.Error(err))
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return eris.Wrap(err, "http shutdown")
			}
			return nil
		})
		g.Go(func() error {
			startServiceMetricsUpdater(gctx, svc)
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
		log.Info(ctx, "server stopped")
		return nil
	},
}

// newRouter mounts the API and docs routes.
func newRouter(ctx context.Context, svc *service.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	swagger.Register(ctx, r)
	api.NewServer(svc, svc, api.WithIngestRateLimit(cfg.IngestRatePerSec, cfg.IngestBurst)).Register(ctx, r)
	return r
}

// startServiceMetricsUpdater refreshes queue gauges until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats refreshes the queue gauge as a side effect.
			_ = svc.GetStats(ctx)
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
