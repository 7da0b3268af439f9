package flatten

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbookd/sourcekit/internal/models"
)

func TestDataFrames(t *testing.T) {
	t.Run("labeled frame", func(t *testing.T) {
		payload := decodeFramePayload(t, `{
			"results": {
				"A": {
					"frames": [{
						"schema": {
							"fields": [
								{"name": "Time", "type": "time"},
								{"name": "Value", "type": "number", "labels": {"pod": "api-0", "cluster": "prod"}}
							]
						},
						"data": {
							"values": [
								[1700000000000, 1700000060000],
								[0.5, 0.75]
							]
						}
					}]
				}
			}
		}`)

		series := DataFrames(payload)

		require.Len(t, series, 1)
		assert.Equal(t, []models.Label{
			{Name: "ref_id", Value: "A"},
			{Name: "cluster", Value: "prod"},
			{Name: "pod", Value: "api-0"},
		}, series[0].Labels)
		require.Len(t, series[0].Datapoints, 2)
		assert.Equal(t, int64(1700000000000), series[0].Datapoints[0].TimestampMillis)
		assert.Equal(t, 0.5, series[0].Datapoints[0].Value)
	})

	t.Run("multiple value fields become separate series", func(t *testing.T) {
		payload := decodeFramePayload(t, `{
			"results": {
				"A": {
					"frames": [{
						"schema": {
							"fields": [
								{"name": "Time", "type": "time"},
								{"name": "p50", "type": "number"},
								{"name": "p99", "type": "number"}
							]
						},
						"data": {
							"values": [
								[1700000000000],
								[0.1],
								[0.9]
							]
						}
					}]
				}
			}
		}`)

		series := DataFrames(payload)

		require.Len(t, series, 2)
		assert.Equal(t, []models.Label{
			{Name: "ref_id", Value: "A"},
			{Name: "field", Value: "p50"},
		}, series[0].Labels)
		assert.Equal(t, []models.Label{
			{Name: "ref_id", Value: "A"},
			{Name: "field", Value: "p99"},
		}, series[1].Labels)
	})

	t.Run("frame without a time field is skipped", func(t *testing.T) {
		payload := decodeFramePayload(t, `{
			"results": {
				"A": {
					"frames": [{
						"schema": {"fields": [{"name": "Value", "type": "number"}]},
						"data": {"values": [[1, 2, 3]]}
					}]
				}
			}
		}`)

		assert.Empty(t, DataFrames(payload))
	})

	t.Run("null samples are skipped", func(t *testing.T) {
		payload := decodeFramePayload(t, `{
			"results": {
				"A": {
					"frames": [{
						"schema": {
							"fields": [
								{"name": "Time", "type": "time"},
								{"name": "Value", "type": "number"}
							]
						},
						"data": {
							"values": [
								[1700000000000, 1700000060000, 1700000120000],
								[1, null, 3]
							]
						}
					}]
				}
			}
		}`)

		series := DataFrames(payload)

		require.Len(t, series, 1)
		require.Len(t, series[0].Datapoints, 2)
		assert.Equal(t, 1.0, series[0].Datapoints[0].Value)
		assert.Equal(t, 3.0, series[0].Datapoints[1].Value)
	})
}

func decodeFramePayload(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}
