package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/trogers1052/positions-dashboard/internal/models"
)

// PositionKeySource lists positions observed since a point in time
type PositionKeySource interface {
	GetPositionKeysSince(ctx context.Context, since time.Time) ([]models.PositionKey, error)
}

// Prefetcher warms the trade open date cache
type Prefetcher interface {
	PrefetchTradeOpenDates(ctx context.Context, keys []models.PositionKey) error
}

// PrefetchJobName names the trade open date warm-up job
const PrefetchJobName = "prefetch_trade_open_dates"

// PrefetchTradeOpenDates returns a job warming the cache for every position observed within lookback
func PrefetchTradeOpenDates(source PositionKeySource, prefetcher Prefetcher, lookback time.Duration, now func() time.Time) Task {
	return func(ctx context.Context) error {
		keys, err := source.GetPositionKeysSince(ctx, now().Add(-lookback))
		if err != nil {
			return fmt.Errorf("failed to list recent positions: %w", err)
		}
		if len(keys) == 0 {
			return nil
		}
		return prefetcher.PrefetchTradeOpenDates(ctx, keys)
	}
}
