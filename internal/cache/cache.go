package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-health/materna/internal/domain"
)

// New creates a cache from configuration: an in-process LRU for
// single-node deployments or Redis for multi-node ones.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

func predictionKey(id string) string {
	return "prediction:" + id
}

// GetPrediction reads a cached prediction by ID. A miss returns
// nil, nil.
func GetPrediction(ctx context.Context, c domain.Cache, id string) (*domain.Prediction, error) {
	data, err := c.Get(ctx, predictionKey(id))
	if err != nil || data == nil {
		return nil, err
	}

	var pred domain.Prediction
	if err := json.Unmarshal(data, &pred); err != nil {
		return nil, fmt.Errorf("corrupt cached prediction %s: %w", id, err)
	}
	return &pred, nil
}

// SetPrediction caches a prediction under its ID.
func SetPrediction(ctx context.Context, c domain.Cache, pred *domain.Prediction, ttl time.Duration) error {
	data, err := json.Marshal(pred)
	if err != nil {
		return err
	}
	return c.Set(ctx, predictionKey(pred.ID), data, ttl)
}
