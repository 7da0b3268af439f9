package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbookd/sourcekit/internal/assets"
	"github.com/playbookd/sourcekit/internal/config"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

func testDeps() Deps {
	log := logger.NewNop()
	return Deps{
		Logger: log,
		Assets: assets.NewStore(config.CacheConfig{TTLSeconds: 60}, log),
		Cfg:    config.UpstreamConfig{TimeoutMS: 5000, SQLTimeoutSeconds: 5},
	}
}

type stubManager struct {
	source   models.Source
	gotRange models.TimeRange
	results  []models.TaskResult
	err      error
}

func (s *stubManager) Source() models.Source { return s.source }
func (s *stubManager) TaskTypes() []string   { return []string{"stub"} }
func (s *stubManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	s.gotRange = tr
	return s.results, s.err
}
func (s *stubManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	return nil
}

func TestRegistryExecute_RequiresConnector(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	r.Register(&stubManager{source: models.SourceGrafana})

	task := &models.Task{Source: models.SourceGrafana, Type: "stub"}
	_, err := r.Execute(context.Background(), task, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMissingConnector)
}

func TestRegistryExecute_UnknownSource(t *testing.T) {
	r := NewRegistry(logger.NewNop())

	task := &models.Task{Source: "nonexistent", Type: "stub"}
	_, err := r.Execute(context.Background(), task, &models.Connector{Name: "c"})

	assert.ErrorContains(t, err, "no executor registered")
}

func TestRegistryExecute_DefaultsInvalidTimeRange(t *testing.T) {
	stub := &stubManager{source: models.SourceGrafana}
	r := NewRegistry(logger.NewNop())
	r.Register(stub)
	now := time.Unix(1700010000, 0).UTC()
	r.now = func() time.Time { return now }

	task := &models.Task{
		Source:    models.SourceGrafana,
		Type:      "stub",
		TimeRange: models.TimeRange{GEq: 500, Lt: 100},
	}
	_, err := r.Execute(context.Background(), task, &models.Connector{Name: "c"})

	require.NoError(t, err)
	assert.Equal(t, now.Unix()-3600, stub.gotRange.GEq)
	assert.Equal(t, now.Unix(), stub.gotRange.Lt)
}

func TestRegistryExecute_TagsResultSource(t *testing.T) {
	stub := &stubManager{
		source: models.SourceGrafana,
		results: []models.TaskResult{
			{Type: models.ResultTypeText, Text: &models.TextResult{Message: "untagged"}},
		},
	}
	r := NewRegistry(logger.NewNop())
	r.Register(stub)

	task := &models.Task{
		Source:    models.SourceGrafana,
		Type:      "stub",
		TimeRange: models.TimeRange{GEq: 100, Lt: 200},
	}
	results, err := r.Execute(context.Background(), task, &models.Connector{Name: "c"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SourceGrafana, results[0].Source)
}

func TestDefaultRegistry_CoversAllSources(t *testing.T) {
	r := NewDefaultRegistry(testDeps())

	for _, source := range []models.Source{
		models.SourceNewRelic, models.SourceGrafana, models.SourceCoralogix,
		models.SourceSignoz, models.SourceClickHouse, models.SourceSQL,
		models.SourcePostHog, models.SourceOpsGenie, models.SourceRender,
		models.SourceBash, models.SourceKubernetes,
	} {
		m, ok := r.Manager(source)
		require.True(t, ok, "missing executor for %s", source)
		assert.Equal(t, source, m.Source())
		assert.NotEmpty(t, m.TaskTypes())
	}
}
