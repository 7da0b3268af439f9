package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbookd/sourcekit/internal/config"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/internal/sources"
	"github.com/playbookd/sourcekit/pkg/logger"
)

type stubManager struct {
	source  models.Source
	testErr error
}

func (m *stubManager) Source() models.Source { return m.source }

func (m *stubManager) TaskTypes() []string { return []string{"stub_task"} }

func (m *stubManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	return []models.TaskResult{models.NewTextResult(m.source, "stub output")}, nil
}

func (m *stubManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	return m.testErr
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	registry := sources.NewRegistry(log)
	registry.Register(&stubManager{source: models.SourceBash})

	store := config.NewConnectorStore([]models.Connector{
		{
			ID:   "c-1",
			Name: "jump-host",
			Type: models.SourceBash,
			Keys: []models.ConnectorKey{
				{Type: models.KeyHost, Value: "10.0.0.1"},
				{Type: models.KeyPassword, Value: "hunter2"},
			},
		},
	})

	cfg := &config.Config{Environment: "test", Port: 0}
	return NewServer(cfg, log, registry, store)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
}

func TestServer_ConnectorsListRedactsValues(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/connectors", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"jump-host"`)
	assert.Contains(t, body, `"password"`)
	assert.NotContains(t, body, "hunter2")
	assert.NotContains(t, body, "10.0.0.1")
}

func TestServer_Execute(t *testing.T) {
	srv := newTestServer(t)

	payload := `{
		"connector_name": "jump-host",
		"task": {
			"source": "bash",
			"task_type": "stub_task",
			"time_range": {"time_geq": 1700000000, "time_lt": 1700003600}
		}
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/execute", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RequestID string              `json:"request_id"`
		Results   []models.TaskResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RequestID)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.ResultTypeText, resp.Results[0].Type)
}

func TestServer_ExecuteUnknownConnector(t *testing.T) {
	srv := newTestServer(t)

	payload := `{"connector_name": "nope", "task": {"source": "bash", "task_type": "stub_task"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/execute", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ExecuteSourceMismatch(t *testing.T) {
	srv := newTestServer(t)

	payload := `{"connector_name": "jump-host", "task": {"source": "newrelic", "task_type": "nrql_metric_execution"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/execute", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_TestConnection(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/connectors/jump-host/test", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}
