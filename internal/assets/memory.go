package assets

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/playbookd/sourcekit/internal/metrics"
	"github.com/playbookd/sourcekit/pkg/logger"
)

// memoryStore is the process-local fallback used when no external cache is
// configured. Best effort: entries are lost on restart and not shared
// across replicas.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	logger  logger.Logger
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func newMemoryStore(ttl time.Duration, log logger.Logger) *memoryStore {
	return &memoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		logger:  log,
	}
}

func (s *memoryStore) Get(ctx context.Context, key Key, fetch Fetcher) (map[string]any, error) {
	cacheKey := key.String()

	s.mu.RLock()
	entry, ok := s.entries[cacheKey]
	s.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt) {
		var asset map[string]any
		if err := json.Unmarshal(entry.payload, &asset); err == nil {
			metrics.CacheRequestsTotal.WithLabelValues("get", "hit").Inc()
			return asset, nil
		}
	}
	metrics.CacheRequestsTotal.WithLabelValues("get", "miss").Inc()

	asset, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if b, jsonErr := json.Marshal(asset); jsonErr == nil {
		s.mu.Lock()
		s.entries[cacheKey] = memoryEntry{payload: b, expiresAt: time.Now().Add(s.ttl)}
		s.mu.Unlock()
	}
	return asset, nil
}

func (s *memoryStore) Invalidate(ctx context.Context, key Key) {
	s.mu.Lock()
	delete(s.entries, key.String())
	s.mu.Unlock()
}
