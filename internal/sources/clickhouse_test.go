package sources

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbookd/sourcekit/internal/models"
)

func clickhouseConnector(t *testing.T, serverURL string) *models.Connector {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	return &models.Connector{
		ID:   "ch-1",
		Name: "events-clickhouse",
		Type: models.SourceClickHouse,
		Keys: []models.ConnectorKey{
			{Type: models.KeyHost, Value: u.Hostname()},
			{Type: models.KeyPort, Value: u.Port()},
			{Type: models.KeyUser, Value: "default"},
			{Type: models.KeyPassword, Value: "secret"},
		},
	}
}

func TestClickHouseManager_QueryReturnsOrderedTable(t *testing.T) {
	var gotSQL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSQL = string(body)
		assert.Equal(t, "default", r.Header.Get("X-ClickHouse-User"))
		assert.Equal(t, "secret", r.Header.Get("X-ClickHouse-Key"))

		json.NewEncoder(w).Encode(map[string]any{
			"meta": []any{
				map[string]any{"name": "service", "type": "String"},
				map[string]any{"name": "errors", "type": "UInt64"},
			},
			"data": []any{
				map[string]any{"service": "checkout", "errors": 12},
				map[string]any{"service": "search", "errors": 3},
			},
			"rows": 2,
		})
	}))
	defer srv.Close()

	manager := NewClickHouseManager(testDeps())
	raw, _ := json.Marshal(models.SQLQueryTask{
		Database: "telemetry",
		Query:    "SELECT service, count() AS errors FROM errors GROUP BY service;",
		Limit:    50,
	})
	task := &models.Task{Source: models.SourceClickHouse, Type: TaskSQLQuery, Params: raw}

	results, err := manager.Execute(context.Background(), models.TimeRange{GEq: 1700000000, Lt: 1700003600}, task, clickhouseConnector(t, srv.URL))

	require.NoError(t, err)
	require.Len(t, results, 1)

	// trailing semicolon stripped, LIMIT appended, FORMAT JSON added by the client
	assert.Contains(t, gotSQL, "GROUP BY service LIMIT 50")
	assert.Contains(t, gotSQL, "FORMAT JSON")
	assert.NotContains(t, gotSQL, ";")

	table := results[0].Table
	require.NotNil(t, table)
	assert.Equal(t, uint64(2), table.TotalCount)
	require.Len(t, table.Rows, 2)
	// column order comes from the meta block, not sorted field names
	assert.Equal(t, "service", table.Rows[0].Columns[0].Name)
	assert.Equal(t, "checkout", table.Rows[0].Columns[0].Value)
	assert.Equal(t, "errors", table.Rows[0].Columns[1].Name)
	assert.Equal(t, "12", table.Rows[0].Columns[1].Value)
}

func TestClickHouseManager_MissingHostIsConfigError(t *testing.T) {
	manager := NewClickHouseManager(testDeps())
	raw, _ := json.Marshal(models.SQLQueryTask{Query: "SELECT 1"})
	task := &models.Task{Source: models.SourceClickHouse, Type: TaskSQLQuery, Params: raw}
	connector := &models.Connector{ID: "ch-2", Name: "empty", Type: models.SourceClickHouse}

	_, err := manager.Execute(context.Background(), models.TimeRange{GEq: 1, Lt: 2}, task, connector)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMissingCredential)
}
