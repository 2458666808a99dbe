// Command confirmer runs the confirmation scheduler as a long-lived worker.
// It recovers persisted jobs at start, rescans the job store for jobs other
// processes enqueue and serves /health and /metrics. It never opens the
// wallet store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"solana-trade-engine/internal/app"
	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/logging"
	"solana-trade-engine/internal/observability"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config)")
	rescan := flag.Duration("rescan", 0, "Job store rescan interval (overrides config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.App.MetricsAddr = *metricsAddr
	}
	if *rescan > 0 {
		cfg.Scheduler.RescanInterval = *rescan
	}
	logger := logging.New(cfg.App.LogLevel, cfg.App.LogFormat).With().Str("cmd", "confirmer").Logger()

	switch cfg.Storage.JobsBackend() {
	case "memory":
		logger.Warn().Msg("in-memory job store; jobs enqueued by other processes are not visible")
	case "badger":
		logger.Warn().Str("jobs_path", cfg.Storage.JobsPath).
			Msg("badger job store is locked by this process; use storage.jobs: postgres to share jobs with cmd/trade")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	a, err := app.BuildConfirmer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build pipeline")
	}
	defer a.Close()

	srv := startHTTPServer(cfg.App.MetricsAddr, a, logger)

	if err := a.Scheduler.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("scheduler")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	logger.Info().Msg("shutdown complete")
}

func startHTTPServer(addr string, a *app.App, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"running","pending_jobs":%d}`, a.Scheduler.Pending())
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server")
		}
	}()
	return srv
}
