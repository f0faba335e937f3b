// Package cache memoises backtest results in Redis, keyed by the run fingerprint.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"strategylab/services/engine"
)

type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// ResultCache stores BacktestResult JSON under <prefix>result:<fingerprint>.
type ResultCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// New connects to Redis and pings it.
func New(cfg Config, logger *zap.Logger) (*ResultCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewWithClient(rdb, cfg, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, cfg Config, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "strategylab:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResultCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *ResultCache) Key(fingerprint string) string {
	return c.prefix + "result:" + fingerprint
}

// Get returns (nil, false, nil) on a miss.
func (c *ResultCache) Get(ctx context.Context, fingerprint string) (*engine.BacktestResult, bool, error) {
	val, err := c.client.Get(ctx, c.Key(fingerprint)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var res engine.BacktestResult
	if err := json.Unmarshal(val, &res); err != nil {
		// A corrupt entry is treated as a miss and removed.
		c.logger.Warn("Dropping undecodable cached result", zap.String("fingerprint", fingerprint), zap.Error(err))
		_ = c.client.Del(ctx, c.Key(fingerprint)).Err()
		return nil, false, nil
	}
	return &res, true, nil
}

func (c *ResultCache) Set(ctx context.Context, fingerprint string, res engine.BacktestResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(fingerprint), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *ResultCache) Delete(ctx context.Context, fingerprint string) error {
	if err := c.client.Del(ctx, c.Key(fingerprint)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (c *ResultCache) Close() error { return c.client.Close() }
