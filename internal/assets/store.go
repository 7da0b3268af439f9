// Package assets caches dashboard/asset metadata fetched from vendor APIs.
// Dashboard definitions are large and change rarely; fan-out executors
// re-read them on every invocation, so a short-TTL cache in front of the
// vendor fetch saves the bulk of repeat calls.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/playbookd/sourcekit/internal/config"
	"github.com/playbookd/sourcekit/internal/metrics"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

// Key identifies one cached asset.
type Key struct {
	ConnectorType models.Source
	ConnectorID   string
	AssetType     string // e.g. "dashboard"
	AssetID       string
}

func (k Key) String() string {
	return fmt.Sprintf("sourcekit:assets:%s:%s:%s:%s", k.ConnectorType, k.ConnectorID, k.AssetType, k.AssetID)
}

// Fetcher loads the asset from the vendor when the cache misses.
type Fetcher func(ctx context.Context) (map[string]any, error)

// Store is the asset metadata cache.
type Store interface {
	// Get returns the cached asset, calling fetch and filling the cache on
	// a miss. Cache failures degrade to a direct fetch, never an error.
	Get(ctx context.Context, key Key, fetch Fetcher) (map[string]any, error)
	Invalidate(ctx context.Context, key Key)
}

// NewStore connects to the configured redis nodes, falling back to an
// in-process map when none are configured or the connection fails.
func NewStore(cfg config.CacheConfig, log logger.Logger) Store {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	if len(cfg.Nodes) == 0 {
		return newMemoryStore(ttl, log)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Nodes[0],
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("asset cache unavailable; using in-memory fallback", "error", err)
		return newMemoryStore(ttl, log)
	}

	log.Info("asset cache connected", "addr", cfg.Nodes[0])
	return &redisStore{client: client, ttl: ttl, logger: log}
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func (s *redisStore) Get(ctx context.Context, key Key, fetch Fetcher) (map[string]any, error) {
	cacheKey := key.String()

	raw, err := s.client.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var asset map[string]any
		if jsonErr := json.Unmarshal(raw, &asset); jsonErr == nil {
			metrics.CacheRequestsTotal.WithLabelValues("get", "hit").Inc()
			return asset, nil
		}
		// poisoned entry; drop it and fall through to fetch
		s.client.Del(ctx, cacheKey)
	}
	if err != nil && err != redis.Nil {
		metrics.CacheRequestsTotal.WithLabelValues("get", "error").Inc()
		s.logger.Warn("asset cache read failed", "key", cacheKey, "error", err)
	} else {
		metrics.CacheRequestsTotal.WithLabelValues("get", "miss").Inc()
	}

	asset, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if b, jsonErr := json.Marshal(asset); jsonErr == nil {
		if setErr := s.client.Set(ctx, cacheKey, b, s.ttl).Err(); setErr != nil {
			metrics.CacheRequestsTotal.WithLabelValues("set", "error").Inc()
			s.logger.Warn("asset cache write failed", "key", cacheKey, "error", setErr)
		} else {
			metrics.CacheRequestsTotal.WithLabelValues("set", "ok").Inc()
		}
	}
	return asset, nil
}

func (s *redisStore) Invalidate(ctx context.Context, key Key) {
	s.client.Del(ctx, key.String())
}
