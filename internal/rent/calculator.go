package rent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/positions-dashboard/internal/models"
	"github.com/trogers1052/positions-dashboard/internal/repository"
	"github.com/trogers1052/positions-dashboard/internal/utils"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultBatchSize is the number of trade open date lookups dispatched together by PrefetchTradeOpenDates
const DefaultBatchSize = 10

// TradeOpenDateSource finds the first observation of a position.
// Implementations return repository.ErrNotFound when the position was never observed.
type TradeOpenDateSource interface {
	EarliestObservation(ctx context.Context, conid, internalAccountID string) (time.Time, error)
}

// Clock supplies the current instant
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now calls f
func (f ClockFunc) Now() time.Time { return f() }

// Option configures a Calculator
type Option func(*Calculator)

// WithClock replaces the wall clock used for current DTE
func WithClock(clock Clock) Option {
	return func(c *Calculator) { c.clock = clock }
}

// WithBatchSize sets the prefetch group size; non-positive values are ignored
func WithBatchSize(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// Calculator computes rent per day per share for option positions.
// It owns a cache of trade open dates keyed by conid:internalAccountID. A failed
// lookup is cached as unknown and is not retried until the entry is cleared.
type Calculator struct {
	source    TradeOpenDateSource
	clock     Clock
	batchSize int

	mu       sync.RWMutex
	cache    map[string]*string
	inflight singleflight.Group
}

// NewCalculator creates a Calculator reading trade open dates from source
func NewCalculator(source TradeOpenDateSource, opts ...Option) *Calculator {
	c := &Calculator{
		source:    source,
		clock:     ClockFunc(time.Now),
		batchSize: DefaultBatchSize,
		cache:     make(map[string]*string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(conid, internalAccountID string) string {
	return models.PositionKey{Conid: conid, InternalAccountID: internalAccountID}.String()
}

func (c *Calculator) cached(key string) (*string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	date, ok := c.cache[key]
	return date, ok
}

// FetchTradeOpenDate returns the trade open date of a position as YYYY-MM-DD.
// The second result is false when the date is unknown.
// The lookup shared by concurrent callers ignores their cancellation.
func (c *Calculator) FetchTradeOpenDate(ctx context.Context, conid, internalAccountID string) (string, bool) {
	key := cacheKey(conid, internalAccountID)
	if date, ok := c.cached(key); ok {
		return deref(date)
	}

	v, _, _ := c.inflight.Do(key, func() (interface{}, error) {
		if date, ok := c.cached(key); ok {
			return date, nil
		}
		date := c.lookup(context.WithoutCancel(ctx), conid, internalAccountID)

		c.mu.Lock()
		c.cache[key] = date
		c.mu.Unlock()
		return date, nil
	})
	return deref(v.(*string))
}

func (c *Calculator) lookup(ctx context.Context, conid, internalAccountID string) *string {
	rqID := utils.GetRequestIDFromCtx(ctx)

	observedAt, err := c.source.EarliestObservation(ctx, conid, internalAccountID)
	if errors.Is(err, repository.ErrNotFound) {
		slog.Debug("no observation for position",
			slog.String("rqID", rqID), slog.String("conid", conid), slog.String("account", internalAccountID))
		return nil
	}
	if err != nil {
		slog.Error("failed to fetch trade open date",
			slog.String("rqID", rqID), slog.String("conid", conid),
			slog.String("account", internalAccountID), slog.String("err", err.Error()))
		return nil
	}
	if observedAt.IsZero() {
		return nil
	}

	date := observedAt.Format(DateLayout)
	return &date
}

// CalculateRent computes the entry and current rent figures of a position.
// The entry leg needs the entry cash flow and the trade open date; the current leg needs the
// market value. Each leg is filled independently and divisions by a non-positive day count are skipped.
func (c *Calculator) CalculateRent(ctx context.Context, p models.PositionEconomics) models.RentResult {
	result := models.RentResult{
		EntryCashFlow:      p.ComputedCashFlowOnEntry,
		MarketValue:        p.MarketValue,
		AccountingQuantity: p.AccountingQuantity,
	}

	expiry, ok := ParseExpiry(p.Symbol)
	if !ok {
		slog.Warn("could not parse expiry date from symbol",
			slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("symbol", p.Symbol))
		return result
	}
	result.ExpiryDate = &expiry

	if !p.AccountingQuantity.Valid || p.AccountingQuantity.Decimal.IsZero() {
		return result
	}
	absQuantity := p.AccountingQuantity.Decimal.Abs()

	if dte, ok := CurrentDTE(expiry, c.clock.Now()); ok {
		result.CurrentDTE = &dte
	}

	tradeOpenDate, known := c.FetchTradeOpenDate(ctx, p.Conid, p.InternalAccountID)
	if known {
		result.TradeOpenDate = &tradeOpenDate
	}

	// At entry: premium = entry cash flow / |qty|, rent = premium / (expiry - trade open)
	if p.ComputedCashFlowOnEntry.Valid && known {
		premium := p.ComputedCashFlowOnEntry.Decimal.Div(absQuantity)
		result.EntryPremiumPerShare = decimal.NewNullDecimal(premium)

		if days, ok := DaysBetween(tradeOpenDate, expiry); ok {
			result.TotalDaysAtEntry = &days
			if days > 0 {
				result.EntryRentPerDayPerShare = decimal.NewNullDecimal(premium.Div(decimal.NewFromInt(int64(days))))
			}
		}
	}

	// Current: premium = market value / |qty|, rent = premium / DTE
	if p.MarketValue.Valid {
		premium := p.MarketValue.Decimal.Div(absQuantity)
		result.CurrentPremiumPerShare = decimal.NewNullDecimal(premium)

		if result.CurrentDTE != nil && *result.CurrentDTE > 0 {
			result.CurrentRentPerDayPerShare = decimal.NewNullDecimal(premium.Div(decimal.NewFromInt(int64(*result.CurrentDTE))))
		}
	}

	return result
}

// CalculateRents warms the cache for all positions and then computes each rent result in order
func (c *Calculator) CalculateRents(ctx context.Context, positions []models.PositionEconomics) ([]models.RentResult, error) {
	keys := make([]models.PositionKey, 0, len(positions))
	for _, p := range positions {
		keys = append(keys, p.Key())
	}
	if err := c.PrefetchTradeOpenDates(ctx, keys); err != nil {
		return nil, err
	}

	results := make([]models.RentResult, 0, len(positions))
	for _, p := range positions {
		results = append(results, c.CalculateRent(ctx, p))
	}
	return results, nil
}

// PrefetchTradeOpenDates populates the cache for positions that are not cached yet.
// Lookups run in groups of the configured batch size; a group is fully awaited before the next starts.
// It only returns an error when ctx is cancelled between groups.
func (c *Calculator) PrefetchTradeOpenDates(ctx context.Context, keys []models.PositionKey) error {
	seen := make(map[string]struct{}, len(keys))
	uncached := make([]models.PositionKey, 0, len(keys))
	for _, k := range keys {
		key := k.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := c.cached(key); !ok {
			uncached = append(uncached, k)
		}
	}

	if len(uncached) == 0 {
		return nil
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Info("pre-fetching trade open dates", slog.String("rqID", rqID), slog.Int("positions", len(uncached)))

	for start := 0; start < len(uncached); start += c.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+c.batchSize, len(uncached))
		var g errgroup.Group
		for _, k := range uncached[start:end] {
			g.Go(func() error {
				c.FetchTradeOpenDate(ctx, k.Conid, k.InternalAccountID)
				return nil
			})
		}
		_ = g.Wait()
	}

	slog.Info("pre-fetched trade open dates", slog.String("rqID", rqID), slog.Int("positions", len(uncached)))
	return nil
}

// Forget drops the cached trade open date of one position
func (c *Calculator) Forget(conid, internalAccountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, cacheKey(conid, internalAccountID))
}

// ClearCache empties the trade open date cache
func (c *Calculator) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*string)
}

func deref(date *string) (string, bool) {
	if date == nil {
		return "", false
	}
	return *date, true
}
