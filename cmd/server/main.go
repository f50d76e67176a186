// Command server runs ingestion and the chart HTTP API in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"token-chart-lab/internal/api"
	"token-chart-lab/internal/app"
	"token-chart-lab/internal/config"
	"token-chart-lab/internal/logger"
)

func main() {
	loadEnvFile()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config (empty for defaults)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	noIngest := flag.Bool("no-ingest", false, "Serve the API only; another process ingests")

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
	log = log.With().Str("cmd", "server").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, !*noIngest, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server failed")
		closer.Close()
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, ingest bool, log zerolog.Logger) error {
	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	var status api.StatusProvider
	g, gctx := errgroup.WithContext(ctx)

	if ingest {
		runner := app.NewRunner(cfg, stores, log)
		status = runner
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}

	handler := api.NewHandler(app.NewChartService(cfg, stores), stores.Tokens, status, log)
	srv := api.NewServer(handler, api.ServerConfig{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, log)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	log.Info().
		Str("addr", cfg.Server.Addr).
		Bool("ingest", ingest).
		Dur("interval", cfg.Ingestion.PollInterval).
		Msg("server started")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	select {
	case err := <-done:
		return err
	case <-time.After(cfg.Server.ShutdownTimeout + 5*time.Second):
		return errors.New("graceful shutdown timed out")
	}
}

// loadEnvFile exports KEY=VALUE lines from ./.env without overriding the
// existing environment.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, strings.TrimSpace(value))
		}
	}
}
