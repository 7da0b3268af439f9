package assets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

func TestKey_StringFromConnector(t *testing.T) {
	connector := &models.Connector{ID: "c1", Type: models.SourceGrafana}
	key := Key{
		ConnectorType: connector.Type,
		ConnectorID:   connector.ID,
		AssetType:     "dashboard",
		AssetID:       "d1",
	}
	assert.Equal(t, "sourcekit:assets:grafana:c1:dashboard:d1", key.String())
}

func TestMemoryStore_CachesFetchedAsset(t *testing.T) {
	store := newMemoryStore(time.Minute, logger.NewNop())
	key := Key{ConnectorType: models.SourceGrafana, ConnectorID: "c1", AssetType: "dashboard", AssetID: "d1"}

	calls := 0
	fetch := func(ctx context.Context) (map[string]any, error) {
		calls++
		return map[string]any{"title": "latency"}, nil
	}

	first, err := store.Get(context.Background(), key, fetch)
	require.NoError(t, err)
	second, err := store.Get(context.Background(), key, fetch)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestMemoryStore_ExpiredEntryRefetches(t *testing.T) {
	store := newMemoryStore(-time.Second, logger.NewNop()) // everything expires immediately
	key := Key{ConnectorType: models.SourceSignoz, ConnectorID: "c1", AssetType: "dashboard", AssetID: "d1"}

	calls := 0
	fetch := func(ctx context.Context) (map[string]any, error) {
		calls++
		return map[string]any{"n": float64(calls)}, nil
	}

	_, err := store.Get(context.Background(), key, fetch)
	require.NoError(t, err)
	_, err = store.Get(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMemoryStore_FetchErrorPropagates(t *testing.T) {
	store := newMemoryStore(time.Minute, logger.NewNop())
	key := Key{ConnectorType: models.SourceNewRelic, ConnectorID: "c1", AssetType: "dashboard", AssetID: "missing"}

	boom := errors.New("vendor down")
	_, err := store.Get(context.Background(), key, func(ctx context.Context) (map[string]any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestMemoryStore_Invalidate(t *testing.T) {
	store := newMemoryStore(time.Minute, logger.NewNop())
	key := Key{ConnectorType: models.SourceGrafana, ConnectorID: "c1", AssetType: "dashboard", AssetID: "d1"}

	calls := 0
	fetch := func(ctx context.Context) (map[string]any, error) {
		calls++
		return map[string]any{}, nil
	}

	_, _ = store.Get(context.Background(), key, fetch)
	store.Invalidate(context.Background(), key)
	_, _ = store.Get(context.Background(), key, fetch)
	assert.Equal(t, 2, calls)
}
