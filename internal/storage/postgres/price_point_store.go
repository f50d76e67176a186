package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/observability"
	"token-chart-lab/internal/storage"
)

// PricePointStore implements storage.PricePointStore using PostgreSQL.
type PricePointStore struct {
	pool *Pool
}

// NewPricePointStore creates a new PricePointStore.
func NewPricePointStore(pool *Pool) *PricePointStore {
	return &PricePointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PricePointStore = (*PricePointStore)(nil)

// Numerics travel as text so pgx needs no decimal codec.
const insertPointSQL = `
	INSERT INTO token_hour_data (
		token_id, symbol, open, high, low, close, price_usd, period_start_unix, timestamp
	) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9)
	ON CONFLICT ON CONSTRAINT uix_token_hour_data_token_price_timestamp DO NOTHING
`

// InsertBatch adds points in a single implicit transaction, skipping duplicates.
func (s *PricePointStore) InsertBatch(ctx context.Context, points []*domain.PricePoint) (inserted int64, err error) {
	if len(points) == 0 {
		return 0, nil
	}
	for _, p := range points {
		if p == nil || p.TokenID == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "insert_points", time.Since(start).Seconds(), err)
	}()

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(insertPointSQL,
			p.TokenID,
			p.Symbol,
			p.Open.String(),
			p.High.String(),
			p.Low.String(),
			p.Close.String(),
			p.PriceUSD.String(),
			p.PeriodStartUnix,
			p.Timestamp.UTC(),
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range points {
		tag, execErr := results.Exec()
		if execErr != nil {
			return 0, fmt.Errorf("insert price point: %w", execErr)
		}
		inserted += tag.RowsAffected()
	}

	return inserted, nil
}

// MaxPeriodStartByToken returns max(period_start_unix) grouped by token.
func (s *PricePointStore) MaxPeriodStartByToken(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_id, MAX(period_start_unix)
		FROM token_hour_data
		GROUP BY token_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query max period start: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var tokenID string
		var latest int64
		if err := rows.Scan(&tokenID, &latest); err != nil {
			return nil, fmt.Errorf("scan max period start: %w", err)
		}
		result[tokenID] = latest
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate max period start: %w", err)
	}
	return result, nil
}

// GetByTokenID retrieves all points for a token, ordered by timestamp ASC.
func (s *PricePointStore) GetByTokenID(ctx context.Context, tokenID string) (points []*domain.PricePoint, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "points_for_token", time.Since(start).Seconds(), err)
	}()

	rows, err := s.pool.Query(ctx, `
		SELECT token_id, symbol, open::text, high::text, low::text, close::text,
		       price_usd::text, period_start_unix, timestamp
		FROM token_hour_data
		WHERE token_id = $1
		ORDER BY timestamp ASC, price_usd ASC
	`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("query points by token: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// DeleteBefore removes points with period_start_unix < cutoffUnix.
func (s *PricePointStore) DeleteBefore(ctx context.Context, cutoffUnix int64) (deleted int64, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "delete_before", time.Since(start).Seconds(), err)
	}()

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM token_hour_data WHERE period_start_unix < $1
	`, cutoffUnix)
	if err != nil {
		return 0, fmt.Errorf("delete points before %d: %w", cutoffUnix, err)
	}
	return tag.RowsAffected(), nil
}

// scanPricePoints scans multiple rows.
func scanPricePoints(rows pgx.Rows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint

	for rows.Next() {
		var p domain.PricePoint
		var open, high, low, closePrice, priceUSD string

		err := rows.Scan(
			&p.TokenID, &p.Symbol,
			&open, &high, &low, &closePrice, &priceUSD,
			&p.PeriodStartUnix, &p.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price point row: %w", err)
		}

		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&p.Open, open}, {&p.High, high}, {&p.Low, low}, {&p.Close, closePrice}, {&p.PriceUSD, priceUSD},
		} {
			d, err := decimal.NewFromString(f.src)
			if err != nil {
				return nil, fmt.Errorf("parse numeric %q: %w", f.src, err)
			}
			*f.dst = d
		}

		p.Timestamp = p.Timestamp.UTC()
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price point rows: %w", err)
	}

	return points, nil
}
