package app

import (
	"github.com/rs/zerolog"

	"token-chart-lab/internal/chart"
	"token-chart-lab/internal/config"
	"token-chart-lab/internal/ingestion"
	"token-chart-lab/internal/subgraph"
)

// NewRunner builds the ingestion runner over stores, pulling from the
// configured subgraph endpoint.
func NewRunner(cfg *config.Config, stores *Stores, log zerolog.Logger) *ingestion.Runner {
	client := subgraph.NewClient(cfg.Subgraph.Endpoint, subgraph.WithTimeout(cfg.Subgraph.Timeout))
	return NewRunnerWithSource(cfg, stores, client, log)
}

// NewRunnerWithSource is NewRunner with an explicit page source.
func NewRunnerWithSource(cfg *config.Config, stores *Stores, src ingestion.Source, log zerolog.Logger) *ingestion.Runner {
	tracked := cfg.Ingestion.TrackedTokens()

	fetcher := ingestion.NewFetcher(ingestion.FetcherOptions{
		Source:      src,
		Sink:        ingestion.NewSink(stores.Tokens, stores.Points, log),
		Tokens:      tracked,
		Policy:      cfg.Ingestion.Retry,
		PageSize:    cfg.Ingestion.PageSize,
		Concurrency: cfg.Ingestion.Concurrency,
		Logger:      log,
	})

	return ingestion.NewRunner(ingestion.RunnerOptions{
		Fetcher:          fetcher,
		Pruner:           ingestion.NewPruner(stores.Points, log),
		Points:           stores.Points,
		Tokens:           tracked,
		Lookback:         cfg.Ingestion.Lookback(),
		Interval:         cfg.Ingestion.PollInterval,
		RetentionEnabled: cfg.Ingestion.RetentionEnabled,
		Logger:           log,
	})
}

// NewChartService builds the chart query service over stores.
func NewChartService(cfg *config.Config, stores *Stores) *chart.Service {
	return chart.NewService(chart.NewAggregator(stores.Points), stores.Tokens, cfg.Ingestion.TrackedTokens())
}
