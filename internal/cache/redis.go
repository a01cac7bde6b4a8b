package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/positions-dashboard/internal/config"
	"github.com/trogers1052/positions-dashboard/internal/rent"
	"github.com/trogers1052/positions-dashboard/internal/utils"
)

const tradeOpenKeyPrefix = "trade_open:"

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pong, err := rdb.Ping(ctx).Result()
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis connected", slog.String("pong", pong))

	return rdb, nil
}

// TradeOpenDates shares earliest observations between processes.
// Found observations are written through with a TTL; misses and errors always reach the wrapped source,
// so a position that appears later is picked up on the next lookup.
type TradeOpenDates struct {
	redis  *redis.Client
	source rent.TradeOpenDateSource
	ttl    time.Duration
}

// NewTradeOpenDates wraps source with a redis read-through cache
func NewTradeOpenDates(redisClient *redis.Client, source rent.TradeOpenDateSource, ttl time.Duration) *TradeOpenDates {
	return &TradeOpenDates{redis: redisClient, source: source, ttl: ttl}
}

func tradeOpenKey(conid, internalAccountID string) string {
	return tradeOpenKeyPrefix + conid + ":" + internalAccountID
}

// EarliestObservation returns the cached observation or asks the wrapped source
func (t *TradeOpenDates) EarliestObservation(ctx context.Context, conid, internalAccountID string) (time.Time, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	key := tradeOpenKey(conid, internalAccountID)

	res, err := t.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		observedAt, parseErr := time.Parse(time.RFC3339Nano, res)
		if parseErr == nil {
			return observedAt, nil
		}
		slog.Error("can't parse cached trade open date",
			slog.String("rqID", rqID), slog.String("key", key), slog.String("resultFromRedis", res))
	case errors.Is(err, redis.Nil):
	default:
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
	}

	observedAt, err := t.source.EarliestObservation(ctx, conid, internalAccountID)
	if err != nil {
		return time.Time{}, err
	}

	if err := t.redis.Set(ctx, key, observedAt.Format(time.RFC3339Nano), t.ttl).Err(); err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
	}

	return observedAt, nil
}

// Forget drops the cached observation of one position
func (t *TradeOpenDates) Forget(ctx context.Context, conid, internalAccountID string) error {
	if err := t.redis.Del(ctx, tradeOpenKey(conid, internalAccountID)).Err(); err != nil {
		return fmt.Errorf("failed to delete trade open date: %w", err)
	}
	return nil
}

// Clear drops every cached observation
func (t *TradeOpenDates) Clear(ctx context.Context) error {
	iter := t.redis.Scan(ctx, 0, tradeOpenKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan trade open dates: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := t.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete trade open dates: %w", err)
	}
	return nil
}
