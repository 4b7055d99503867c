// Package rediscache puts a short-lived Redis cache in front of a
// market.Provider's latest-price lookups, so several processes polling the
// same watchlist share one upstream request per symbol per TTL.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rustyeddy/swingtrader/market"
)

type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// kv is the subset of *redis.Client used here.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type Cache struct {
	next   market.Provider
	rdb    kv
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

type Option func(*Cache)

func WithPrefix(p string) Option {
	return func(c *Cache) { c.prefix = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(next market.Provider, rdb kv, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		prefix: "swingtrader:px:",
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(symbol string) string {
	return c.prefix + strings.ToUpper(symbol)
}

// Bars are not cached.
func (c *Cache) Bars(ctx context.Context, symbol string, tf market.Timeframe, lookback int) ([]market.Bar, error) {
	return c.next.Bars(ctx, symbol, tf, lookback)
}

// LatestPrice serves from Redis when a fresh entry exists. Redis failures
// degrade to the upstream provider.
func (c *Cache) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	key := c.key(symbol)

	s, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if px, perr := strconv.ParseFloat(s, 64); perr == nil && px > 0 {
			return px, nil
		}
		c.logger.Warn("rediscache: bad cached price", zap.String("key", key), zap.String("value", s))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("rediscache: get failed", zap.String("key", key), zap.Error(err))
	}

	px, err := c.next.LatestPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}

	val := strconv.FormatFloat(px, 'f', -1, 64)
	if err := c.rdb.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.Warn("rediscache: set failed", zap.String("key", key), zap.Error(err))
	}
	return px, nil
}

var _ market.Provider = (*Cache)(nil)
