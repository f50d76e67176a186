package ingestion

import (
	"context"
	"fmt"
	"time"

	"token-chart-lab/internal/storage"
)

// ResolveCursors returns the exclusive lower bound on period start to request
// for each tracked token: the latest stored period start, or now-lookback for
// tokens with nothing stored. Tokens outside trackedIDs are ignored.
func ResolveCursors(ctx context.Context, store storage.PricePointStore, trackedIDs []string, lookback time.Duration, now time.Time) (map[string]int64, error) {
	latest, err := store.MaxPeriodStartByToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve cursors: %w", err)
	}

	fallback := now.Add(-lookback).Unix()
	cursors := make(map[string]int64, len(trackedIDs))
	for _, id := range trackedIDs {
		if ts, ok := latest[id]; ok {
			cursors[id] = ts
		} else {
			cursors[id] = fallback
		}
	}
	return cursors, nil
}
