package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/observability"
	"token-chart-lab/internal/storage"
)

// PricePointStore implements storage.PricePointStore using ClickHouse.
// Tokens stay in PostgreSQL; only the append-heavy hourly series lives here.
type PricePointStore struct {
	conn *Conn
}

// NewPricePointStore creates a new PricePointStore.
func NewPricePointStore(conn *Conn) *PricePointStore {
	return &PricePointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PricePointStore = (*PricePointStore)(nil)

type pointKey struct {
	tokenID  string
	priceUSD string
	unix     int64
}

func keyOf(p *domain.PricePoint) pointKey {
	return pointKey{p.TokenID, p.PriceUSD.String(), p.Timestamp.Unix()}
}

// InsertBatch adds points, skipping rows whose (token_id, price_usd, timestamp)
// already exist. ReplacingMergeTree collapses any race that slips past the check.
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
		observability.RecordDBQuery("clickhouse", "insert_points", time.Since(start).Seconds(), err)
	}()

	seen := make(map[pointKey]struct{}, len(points))
	fresh := make([]*domain.PricePoint, 0, len(points))
	for _, p := range points {
		k := keyOf(p)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		exists, err := s.exists(ctx, p)
		if err != nil {
			return 0, fmt.Errorf("check exists: %w", err)
		}
		if !exists {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_hour_data (
			token_id, symbol, open, high, low, close, price_usd, period_start_unix, timestamp
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range fresh {
		err = batch.Append(
			p.TokenID, p.Symbol,
			p.Open, p.High, p.Low, p.Close, p.PriceUSD,
			p.PeriodStartUnix, p.Timestamp.UTC(),
		)
		if err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}

	return int64(len(fresh)), nil
}

// MaxPeriodStartByToken returns max(period_start_unix) grouped by token.
func (s *PricePointStore) MaxPeriodStartByToken(ctx context.Context) (map[string]int64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT token_id, max(period_start_unix)
		FROM token_hour_data FINAL
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
		observability.RecordDBQuery("clickhouse", "points_for_token", time.Since(start).Seconds(), err)
	}()

	rows, err := s.conn.Query(ctx, `
		SELECT token_id, symbol, open, high, low, close, price_usd, period_start_unix, timestamp
		FROM token_hour_data FINAL
		WHERE token_id = ?
		ORDER BY timestamp ASC, price_usd ASC
	`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("query points by token: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// DeleteBefore removes points with period_start_unix < cutoffUnix.
// The mutation runs synchronously so callers observe the deletion.
func (s *PricePointStore) DeleteBefore(ctx context.Context, cutoffUnix int64) (deleted int64, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "delete_before", time.Since(start).Seconds(), err)
	}()

	var count uint64
	err = s.conn.QueryRow(ctx, `
		SELECT count() FROM token_hour_data FINAL WHERE period_start_unix < ?
	`, cutoffUnix).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count points before %d: %w", cutoffUnix, err)
	}
	if count == 0 {
		return 0, nil
	}

	syncCtx := clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 1,
	}))
	if err := s.conn.Exec(syncCtx, `
		ALTER TABLE token_hour_data DELETE WHERE period_start_unix < ?
	`, cutoffUnix); err != nil {
		return 0, fmt.Errorf("delete points before %d: %w", cutoffUnix, err)
	}

	return int64(count), nil
}

// exists checks if a point with the same key is stored.
func (s *PricePointStore) exists(ctx context.Context, p *domain.PricePoint) (bool, error) {
	query := `
		SELECT count() FROM token_hour_data
		WHERE token_id = ?
		  AND price_usd = toDecimal128(?, 18)
		  AND timestamp = toDateTime(?, 'UTC')
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, p.TokenID, p.PriceUSD.String(), p.Timestamp.Unix()).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanPricePoints scans multiple rows.
func scanPricePoints(rows chRows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint

	for rows.Next() {
		var p domain.PricePoint
		err := rows.Scan(
			&p.TokenID, &p.Symbol,
			&p.Open, &p.High, &p.Low, &p.Close, &p.PriceUSD,
			&p.PeriodStartUnix, &p.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price point row: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price point rows: %w", err)
	}

	return points, nil
}
