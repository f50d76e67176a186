package ingestion

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"token-chart-lab/internal/observability"
	"token-chart-lab/internal/storage"
)

// Pruner enforces the retention window.
type Pruner struct {
	store storage.PricePointStore
	log   zerolog.Logger
}

// NewPruner creates a Pruner.
func NewPruner(store storage.PricePointStore, log zerolog.Logger) *Pruner {
	return &Pruner{
		store: store,
		log:   log.With().Str("component", "pruner").Logger(),
	}
}

// PruneOlderThan deletes points whose period start is strictly before cutoff.
// Failures are logged and reported as zero deletions.
func (p *Pruner) PruneOlderThan(ctx context.Context, cutoff time.Time) int64 {
	deleted, err := p.store.DeleteBefore(ctx, cutoff.Unix())
	if err != nil {
		p.log.Error().Err(err).Time("cutoff", cutoff).Msg("prune failed")
		return 0
	}

	observability.RecordPruned(deleted)
	p.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned old points")
	return deleted
}
