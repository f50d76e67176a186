// Command ingest runs the hourly price ingestion loop without the HTTP API.
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

	"token-chart-lab/internal/app"
	"token-chart-lab/internal/config"
	"token-chart-lab/internal/logger"
	"token-chart-lab/internal/observability"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config (empty for defaults)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	once := flag.Bool("once", false, "Run a single bootstrap cycle and exit")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *useMemory {
		cfg.Storage.Backend = "memory"
	}

	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	log = log.With().Str("cmd", "ingest").Logger()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go handleSignals(cancel, done, log)

	err = run(ctx, cfg, *once, log)
	close(done)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("ingest failed")
		closer.Close()
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, once bool, log zerolog.Logger) error {
	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := app.NewRunner(cfg, stores, log)

	if once {
		res, err := runner.RunCycle(ctx, true)
		if err != nil {
			return err
		}
		log.Info().
			Str("cycle_id", res.ID).
			Int("advanced", res.Advanced).
			Dur("duration", res.Duration).
			Msg("single cycle complete")
		return nil
	}

	log.Info().
		Dur("interval", cfg.Ingestion.PollInterval).
		Int("lookback_days", cfg.Ingestion.LookbackDays).
		Bool("retention", cfg.Ingestion.RetentionEnabled).
		Msg("starting ingestion")
	return runner.Run(ctx)
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server error")
	}
}

// handleSignals cancels on the first signal and force-exits on a second one
// or when graceful shutdown takes longer than 30s.
func handleSignals(cancel context.CancelFunc, done <-chan struct{}, log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()
	case <-done:
		return
	}

	select {
	case sig := <-sigCh:
		log.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
		os.Exit(1)
	case <-time.After(30 * time.Second):
		log.Warn().Msg("graceful shutdown timed out after 30s, forcing exit")
		os.Exit(1)
	case <-done:
	}
}
