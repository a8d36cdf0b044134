package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-waterfall/internal/api"
	"github.com/sells-group/enrich-waterfall/internal/config"
	"github.com/sells-group/enrich-waterfall/internal/metrics"
	"github.com/sells-group/enrich-waterfall/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the enrichment HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if sw, ok := env.Cache.(sweeper); ok && cfg.Cache.SweepIntervalSecs > 0 {
			go runSweeper(ctx, sw, time.Duration(cfg.Cache.SweepIntervalSecs)*time.Second)
		}
		if cfg.Monitor.Enabled {
			go newChecker(env.Store, cfg.Monitor).Run(ctx)
		}

		srv := api.NewServer(api.Deps{
			Store:        env.Store,
			Orchestrator: env.Orchestrator,
			Configs:      env.Configs,
			Registry:     env.Registry,
			Health:       env.Health,
			Cache:        env.Cache,
		}, api.WithCORSOrigins(cfg.Server.CORSOrigins))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newChecker(src monitoring.Source, mc config.MonitoringConfig) *monitoring.Checker {
	return monitoring.NewChecker(monitoring.NewCollector(src), monitoring.NewAlerter(mc), mc)
}

// runSweeper removes expired cache entries every interval until ctx ends.
func runSweeper(ctx context.Context, sw sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, sw)
		}
	}
}

func sweepOnce(ctx context.Context, sw sweeper) int64 {
	n, err := sw.Sweep(ctx)
	if err != nil {
		zap.L().Warn("cache sweep failed", zap.Error(err))
		return 0
	}
	metrics.CacheSweepDeletedTotal.Add(float64(n))
	if n > 0 {
		zap.L().Info("cache sweep", zap.Int64("deleted", n))
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
