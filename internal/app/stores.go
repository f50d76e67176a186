// Package app wires configuration into stores, the ingestion runner and the
// chart service shared by the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"token-chart-lab/internal/config"
	"token-chart-lab/internal/storage"
	"token-chart-lab/internal/storage/cache"
	chstore "token-chart-lab/internal/storage/clickhouse"
	"token-chart-lab/internal/storage/memory"
	"token-chart-lab/internal/storage/migrations"
	pgstore "token-chart-lab/internal/storage/postgres"
)

// Stores holds the storage implementations selected by configuration.
type Stores struct {
	Tokens storage.TokenStore
	Points storage.PricePointStore
}

// OpenStores connects the configured backends and applies migrations.
// The returned cleanup releases every connection that was opened.
func OpenStores(ctx context.Context, cfg config.Storage, rcfg config.Redis, log zerolog.Logger) (*Stores, func(), error) {
	if cfg.Backend == "memory" {
		log.Info().Msg("using in-memory storage")
		return &Stores{
			Tokens: memory.NewTokenStore(),
			Points: memory.NewPricePointStore(),
		}, func() {}, nil
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pg := cfg.Postgres
	pool, err := pgstore.NewPool(ctx, pg.DSN(), pgstore.WithConnLimits(pg.MinConns, pg.MaxConns))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	closers = append(closers, pool.Close)

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := &Stores{
		Tokens: pgstore.NewTokenStore(pool),
		Points: pgstore.NewPricePointStore(pool),
	}

	if cfg.PointsBackend == "clickhouse" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() {
			if err := conn.Close(); err != nil {
				log.Warn().Err(err).Msg("close clickhouse")
			}
		})
		stores.Points = chstore.NewPricePointStore(conn)
		log.Info().Msg("hourly points stored in clickhouse")
	}

	if rcfg.Addr != "" {
		client, err := cache.NewClient(ctx, rcfg.Addr, rcfg.Password, rcfg.DB)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("close redis")
			}
		})
		stores.Tokens = cache.NewCachedTokenStore(stores.Tokens, client,
			cache.WithTTL(rcfg.TTL), cache.WithLogger(log))
		log.Info().Str("addr", rcfg.Addr).Msg("token metadata cached in redis")
	}

	return stores, cleanup, nil
}
