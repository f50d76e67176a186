package storage

import (
	"context"

	"token-chart-lab/internal/domain"
)

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// UpsertBatch writes tokens keyed by id. On conflict total_supply, volume_usd and
	// decimals are overwritten; id, name and symbol keep their first stored values.
	// Returns the number of rows written.
	UpsertBatch(ctx context.Context, tokens []*domain.Token) (int64, error)

	// GetByID retrieves a token by its id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Token, error)
}

// PricePointStore provides access to token_hour_data storage.
type PricePointStore interface {
	// InsertBatch adds points as one atomic operation. Points whose
	// (token_id, price_usd, timestamp) already exists, in storage or earlier in the
	// same batch, are skipped. Returns the number of rows actually inserted.
	InsertBatch(ctx context.Context, points []*domain.PricePoint) (int64, error)

	// MaxPeriodStartByToken returns max(period_start_unix) grouped by token id.
	MaxPeriodStartByToken(ctx context.Context) (map[string]int64, error)

	// GetByTokenID retrieves all points for a token, ordered by timestamp ASC.
	GetByTokenID(ctx context.Context, tokenID string) ([]*domain.PricePoint, error)

	// DeleteBefore removes points with period_start_unix < cutoffUnix.
	// Returns the number of rows deleted.
	DeleteBefore(ctx context.Context, cutoffUnix int64) (int64, error)
}
