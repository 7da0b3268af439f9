package sources

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbookd/sourcekit/internal/models"
)

func coralogixConnector() *models.Connector {
	return &models.Connector{
		ID:   "cx-1",
		Name: "prod-coralogix",
		Type: models.SourceCoralogix,
		Keys: []models.ConnectorKey{
			{Type: models.KeyAPIKey, Value: "cxtp_test"},
			{Type: models.KeyAPIDomain, Value: "eu2.coralogix.com"},
		},
	}
}

func TestCoralogixManager_InvalidLuceneRejectedBeforeDispatch(t *testing.T) {
	manager := NewCoralogixManager(testDeps())
	raw, _ := json.Marshal(models.CoralogixLogsTask{
		Query:  `status:[500 TO`,
		Syntax: "lucene",
	})
	task := &models.Task{Source: models.SourceCoralogix, Type: TaskCoralogixLogs, Params: raw}

	_, err := manager.Execute(context.Background(), models.TimeRange{GEq: 1700000000, Lt: 1700003600}, task, coralogixConnector())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid lucene query")
}

func TestCoralogixManager_MissingAPIDomainIsConfigError(t *testing.T) {
	manager := NewCoralogixManager(testDeps())
	raw, _ := json.Marshal(models.CoralogixLogsTask{Query: "*"})
	task := &models.Task{Source: models.SourceCoralogix, Type: TaskCoralogixLogs, Params: raw}
	connector := &models.Connector{
		Type: models.SourceCoralogix,
		Keys: []models.ConnectorKey{{Type: models.KeyAPIKey, Value: "cxtp_test"}},
	}

	_, err := manager.Execute(context.Background(), models.TimeRange{GEq: 1, Lt: 2}, task, connector)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMissingCredential)
}

func TestCoralogixWidgetQueries(t *testing.T) {
	detail := decodePayload(t, `{
		"dashboard": {
			"variables": [
				{"name": "app", "value": "checkout"}
			],
			"layout": {
				"sections": [{
					"rows": [{
						"widgets": [
							{
								"id": {"value": "w1"},
								"title": "Error Rate",
								"definition": {
									"lineChart": {
										"queryDefinitions": [{
											"query": {"metrics": {"promqlQuery": {"value": "sum(rate(errors{app=\"${app}\"}[5m]))"}}}
										}]
									}
								}
							},
							{
								"id": {"value": "w2"},
								"title": "Recent Errors",
								"definition": {
									"dataTable": {
										"query": {"dataprime": {"dataprimeQuery": {"text": "source logs | filter severity == ERROR"}}},
										"columns": [{"field": "timestamp"}, {"field": "message"}]
									}
								}
							}
						]
					}]
				}]
			}
		}
	}`)

	vars := coralogixTemplateVariables(detail)
	queries := coralogixWidgetQueries(detail, nil, vars)

	require.Len(t, queries, 2)
	assert.Equal(t, "metrics", queries[0].queryType)
	assert.Contains(t, queries[0].query, `app="checkout"`)
	assert.Equal(t, "logs_table", queries[1].queryType)
	assert.Equal(t, []string{"timestamp", "message"}, queries[1].columns)

	t.Run("widget id filter", func(t *testing.T) {
		filtered := coralogixWidgetQueries(detail, []string{"w2"}, vars)
		require.Len(t, filtered, 1)
		assert.Equal(t, "w2", filtered[0].widgetID)
	})
}

func decodePayload(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}
