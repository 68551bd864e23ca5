package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	forecastKeyPrefix     = "replenish:forecast"
	optimizationKeyPrefix = "replenish:optimization"
	cacheScanBatchSize    = 100
)

// ForecastCache holds the latest forecast and optimization per product.
type ForecastCache interface {
	GetForecast(ctx context.Context, productID int64) (*domain.Forecast, bool, error)
	SetForecast(ctx context.Context, f *domain.Forecast) error
	GetOptimization(ctx context.Context, productID int64) (*domain.OptimizationResult, bool, error)
	SetOptimization(ctx context.Context, r *domain.OptimizationResult) error
	Invalidate(ctx context.Context, productID int64) error
	InvalidateAll(ctx context.Context) error
}

type redisForecastCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopForecastCache struct{}

func NewForecastCache(cfg config.CacheConfig) (ForecastCache, error) {
	if !cfg.Enabled {
		return &noopForecastCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisForecastCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func NewNoopForecastCache() ForecastCache {
	return &noopForecastCache{}
}

func (c *redisForecastCache) GetForecast(ctx context.Context, productID int64) (*domain.Forecast, bool, error) {
	var f domain.Forecast
	ok, err := c.get(ctx, forecastKey(productID), &f)
	if !ok || err != nil {
		return nil, false, err
	}
	return &f, true, nil
}

func (c *redisForecastCache) SetForecast(ctx context.Context, f *domain.Forecast) error {
	return c.set(ctx, forecastKey(f.ProductID), f)
}

func (c *redisForecastCache) GetOptimization(ctx context.Context, productID int64) (*domain.OptimizationResult, bool, error) {
	var r domain.OptimizationResult
	ok, err := c.get(ctx, optimizationKey(productID), &r)
	if !ok || err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

func (c *redisForecastCache) SetOptimization(ctx context.Context, r *domain.OptimizationResult) error {
	return c.set(ctx, optimizationKey(r.ProductID), r)
}

func (c *redisForecastCache) Invalidate(ctx context.Context, productID int64) error {
	return c.client.Del(ctx, forecastKey(productID), optimizationKey(productID)).Err()
}

func (c *redisForecastCache) InvalidateAll(ctx context.Context) error {
	if err := deleteKeysWithPrefix(ctx, c.client, forecastKeyPrefix, cacheScanBatchSize); err != nil {
		return err
	}
	return deleteKeysWithPrefix(ctx, c.client, optimizationKeyPrefix, cacheScanBatchSize)
}

func (c *redisForecastCache) get(ctx context.Context, key string, dst any) (bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return true, nil
}

func (c *redisForecastCache) set(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (n *noopForecastCache) GetForecast(ctx context.Context, productID int64) (*domain.Forecast, bool, error) {
	return nil, false, nil
}

func (n *noopForecastCache) SetForecast(ctx context.Context, f *domain.Forecast) error {
	return nil
}

func (n *noopForecastCache) GetOptimization(ctx context.Context, productID int64) (*domain.OptimizationResult, bool, error) {
	return nil, false, nil
}

func (n *noopForecastCache) SetOptimization(ctx context.Context, r *domain.OptimizationResult) error {
	return nil
}

func (n *noopForecastCache) Invalidate(ctx context.Context, productID int64) error {
	return nil
}

func (n *noopForecastCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func forecastKey(productID int64) string {
	return fmt.Sprintf("%s:%d", forecastKeyPrefix, productID)
}

func optimizationKey(productID int64) string {
	return fmt.Sprintf("%s:%d", optimizationKeyPrefix, productID)
}
