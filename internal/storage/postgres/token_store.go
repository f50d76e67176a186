package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/observability"
	"token-chart-lab/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

const upsertTokenSQL = `
	INSERT INTO tokens (
		id, name, symbol, total_supply, volume_usd, decimals
	) VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE
	SET total_supply = EXCLUDED.total_supply,
	    volume_usd   = EXCLUDED.volume_usd,
	    decimals     = EXCLUDED.decimals,
	    updated_at   = NOW()
`

// UpsertBatch writes tokens in a single implicit transaction.
func (s *TokenStore) UpsertBatch(ctx context.Context, tokens []*domain.Token) (written int64, err error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	for _, t := range tokens {
		if t == nil || t.ID == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "upsert_tokens", time.Since(start).Seconds(), err)
	}()

	batch := &pgx.Batch{}
	for _, t := range tokens {
		batch.Queue(upsertTokenSQL, t.ID, t.Name, t.Symbol, t.TotalSupply, t.VolumeUSD, t.Decimals)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range tokens {
		tag, execErr := results.Exec()
		if execErr != nil {
			return 0, fmt.Errorf("upsert token: %w", execErr)
		}
		written += tag.RowsAffected()
	}

	return written, nil
}

// GetByID retrieves a token by id. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByID(ctx context.Context, id string) (*domain.Token, error) {
	query := `
		SELECT id, name, symbol, total_supply, volume_usd, decimals
		FROM tokens
		WHERE id = $1
	`

	var t domain.Token
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.Symbol,
		&t.TotalSupply,
		&t.VolumeUSD,
		&t.Decimals,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by id: %w", err)
	}
	return &t, nil
}
