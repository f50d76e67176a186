package ingestion

import (
	"context"

	"github.com/rs/zerolog"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/observability"
	"token-chart-lab/internal/storage"
)

// Sink writes normalized data to storage. Duplicate points are skipped by the
// store, so replaying a page is harmless.
type Sink struct {
	tokens storage.TokenStore
	points storage.PricePointStore
	log    zerolog.Logger
}

// NewSink creates a Sink.
func NewSink(tokens storage.TokenStore, points storage.PricePointStore, log zerolog.Logger) *Sink {
	return &Sink{
		tokens: tokens,
		points: points,
		log:    log.With().Str("component", "sink").Logger(),
	}
}

// InsertPoints stores points and returns how many were new.
// On failure nothing is counted and the error is returned.
func (s *Sink) InsertPoints(ctx context.Context, points []*domain.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	n, err := s.points.InsertBatch(ctx, points)
	if err != nil {
		s.log.Error().Err(err).Int("points", len(points)).Str("token", points[0].TokenID).Msg("insert points failed")
		return 0, err
	}

	observability.RecordPointsStored(int(n))
	s.log.Debug().Int64("inserted", n).Int("received", len(points)).Str("token", points[0].TokenID).Msg("points stored")
	return int(n), nil
}

// UpsertMetadata stores token metadata and returns the number of rows written.
func (s *Sink) UpsertMetadata(ctx context.Context, tokens []*domain.Token) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	n, err := s.tokens.UpsertBatch(ctx, tokens)
	if err != nil {
		s.log.Error().Err(err).Int("tokens", len(tokens)).Msg("upsert metadata failed")
		return 0, err
	}

	observability.RecordTokensUpserted(int(n))
	return int(n), nil
}
