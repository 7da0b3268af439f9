package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbookd/sourcekit/internal/models"
)

func newRelicConnector(domain string) *models.Connector {
	return &models.Connector{
		ID:   "nr-1",
		Name: "prod-newrelic",
		Type: models.SourceNewRelic,
		Keys: []models.ConnectorKey{
			{Type: models.KeyAPIKey, Value: "NRAK-test"},
			{Type: models.KeyAccountID, Value: "12345"},
			{Type: models.KeyAPIDomain, Value: domain},
		},
	}
}

func nrqlTask(t *testing.T, params models.NRQLMetricTask) *models.Task {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return &models.Task{
		Source:    models.SourceNewRelic,
		Type:      TaskNRQLMetric,
		TimeRange: models.TimeRange{GEq: 1700000000, Lt: 1700003600},
		Params:    raw,
	}
}

func TestNewRelicManager_MissingCredentialBeforeNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	manager := NewNewRelicManager(testDeps())
	connector := &models.Connector{
		ID:   "nr-2",
		Name: "broken",
		Type: models.SourceNewRelic,
		Keys: []models.ConnectorKey{
			{Type: models.KeyAPIDomain, Value: srv.URL},
		},
	}

	task := nrqlTask(t, models.NRQLMetricTask{NRQLExpression: "SELECT count(*) FROM Transaction TIMESERIES"})
	_, err := manager.Execute(context.Background(), task.TimeRange, task, connector)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMissingCredential)
	assert.Zero(t, calls.Load(), "credential failures must not reach the network")
}

func TestNewRelicManager_NRQLMetricFlattensResults(t *testing.T) {
	var gotQueries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotQueries = append(gotQueries, req.Query)

		resp := map[string]any{
			"data": map[string]any{
				"actor": map[string]any{
					"account": map[string]any{
						"nrql": map[string]any{
							"results": []any{
								map[string]any{"beginTimeSeconds": 1700000000, "throughput": 42.5},
								map[string]any{"beginTimeSeconds": 1700000060, "throughput": 43.0},
							},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	manager := NewNewRelicManager(testDeps())
	task := nrqlTask(t, models.NRQLMetricTask{
		MetricName:     "throughput",
		Unit:           "rpm",
		NRQLExpression: "SELECT rate(count(*), 1 minute) AS 'throughput' FROM Transaction TIMESERIES",
	})

	results, err := manager.Execute(context.Background(), task.TimeRange, task, newRelicConnector(srv.URL))

	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, gotQueries, 1)
	assert.Contains(t, gotQueries[0], "SINCE 1700000000000 UNTIL 1700003600000")
	assert.Contains(t, gotQueries[0], "TIMESERIES 60 SECONDS")

	res := results[0]
	assert.Equal(t, models.ResultTypeTimeseries, res.Type)
	require.NotNil(t, res.Timeseries)
	assert.Equal(t, "throughput", res.Timeseries.MetricName)
	require.Len(t, res.Timeseries.Series, 1)

	series := res.Timeseries.Series[0]
	assert.Equal(t, []models.Label{{Name: "offset_seconds", Value: "0"}}, series.Labels)
	assert.Equal(t, "rpm", series.Unit)
	require.Len(t, series.Datapoints, 2)
	assert.Equal(t, int64(1700000000000), series.Datapoints[0].TimestampMillis)
	assert.Equal(t, 42.5, series.Datapoints[0].Value)
}

func TestNewRelicManager_OffsetsRunShiftedWindows(t *testing.T) {
	var gotQueries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotQueries = append(gotQueries, req.Query)

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"actor": map[string]any{"account": map[string]any{"nrql": map[string]any{
				"results": []any{map[string]any{"beginTimeSeconds": 1700000000, "count": 1.0}},
			}}}},
		})
	}))
	defer srv.Close()

	manager := NewNewRelicManager(testDeps())
	task := nrqlTask(t, models.NRQLMetricTask{
		MetricName:        "errors",
		NRQLExpression:    "SELECT count(*) FROM TransactionError TIMESERIES",
		TimeseriesOffsets: []int64{86400},
	})

	results, err := manager.Execute(context.Background(), task.TimeRange, task, newRelicConnector(srv.URL))

	require.NoError(t, err)
	require.Len(t, gotQueries, 2)
	// the offset query is shifted back a day
	assert.Contains(t, gotQueries[1], "SINCE 1699913600000 UNTIL 1699917200000")

	require.Len(t, results, 1)
	series := results[0].Timeseries.Series
	require.Len(t, series, 2)
	assert.Equal(t, "0", series[0].Labels[0].Value)
	assert.Equal(t, "86400", series[1].Labels[0].Value)
}

func TestNewRelicManager_DashboardNotFoundDegradesToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"actor": map[string]any{"entitySearch": map[string]any{
				"results": map[string]any{"entities": []any{
					map[string]any{"guid": "g1", "name": "Some Other Dashboard"},
				}},
			}}},
		})
	}))
	defer srv.Close()

	manager := NewNewRelicManager(testDeps())
	raw, _ := json.Marshal(models.NewRelicDashboardWidgetsTask{DashboardName: "Checkout Health"})
	task := &models.Task{
		Source:    models.SourceNewRelic,
		Type:      TaskFetchDashboardWidgets,
		TimeRange: models.TimeRange{GEq: 1700000000, Lt: 1700003600},
		Params:    raw,
	}

	results, err := manager.Execute(context.Background(), task.TimeRange, task, newRelicConnector(srv.URL))

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.ResultTypeText, results[0].Type)
	assert.Contains(t, results[0].Text.Message, "Checkout Health")
}
