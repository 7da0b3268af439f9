package flatten

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbookd/sourcekit/internal/models"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func labelValue(s models.LabeledSeries, name string) string {
	for _, l := range s.Labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func TestTimeseries_NonFaceted(t *testing.T) {
	payload := decode(t, `{"results":[
		{"beginTimeSeconds":1700000000,"count":5},
		{"beginTimeSeconds":1700000060,"count":7}
	]}`)

	series := Timeseries(payload, Options{Hints: []string{"count"}})

	require.Len(t, series, 1)
	require.Len(t, series[0].Datapoints, 2)
	assert.Equal(t, int64(1700000000000), series[0].Datapoints[0].TimestampMillis)
	assert.Equal(t, 5.0, series[0].Datapoints[0].Value)
}

func TestTimeseries_FacetedUnderRawResponse(t *testing.T) {
	payload := decode(t, `{"rawResponse":{"facets":[
		{"name":"svcA","timeSeries":[{"beginTimeSeconds":1700000000,"count":1}]},
		{"name":"svcB","timeSeries":[{"beginTimeSeconds":1700000000,"count":2}]}
	]}}`)

	series := Timeseries(payload, Options{Hints: []string{"count"}})

	require.Len(t, series, 2)
	assert.Equal(t, "svcA", labelValue(series[0], "facet"))
	assert.Equal(t, "svcB", labelValue(series[1], "facet"))
}

func TestTimeseries_MultiPartFacetJoined(t *testing.T) {
	payload := decode(t, `{"facets":[
		{"name":["svcA","us-east"],"timeSeries":[{"beginTimeSeconds":1700000000,"count":1}]}
	]}`)

	series := Timeseries(payload, Options{Hints: []string{"count"}})

	require.Len(t, series, 1)
	assert.Equal(t, "svcA | us-east", labelValue(series[0], "facet"))
}

func TestTimeseries_FacetedComparisonEmitsFourSeries(t *testing.T) {
	payload := decode(t, `{
		"current":{"facets":[
			{"name":"svcA","timeSeries":[{"beginTimeSeconds":1700000000,"count":1}]},
			{"name":"svcB","timeSeries":[{"beginTimeSeconds":1700000000,"count":2}]}
		]},
		"previous":{"facets":[
			{"name":"svcA","timeSeries":[{"beginTimeSeconds":1699996400,"count":3}]},
			{"name":"svcB","timeSeries":[{"beginTimeSeconds":1699996400,"count":4}]}
		]}
	}`)

	series := Timeseries(payload, Options{Hints: []string{"count"}})

	require.Len(t, series, 4)
	counts := map[string]int{}
	for _, s := range series {
		facet := labelValue(s, "facet")
		period := labelValue(s, "comparison_period")
		assert.Contains(t, []string{"svcA", "svcB"}, facet)
		assert.Contains(t, []string{"current", "previous"}, period)
		counts[facet+"/"+period]++
	}
	assert.Len(t, counts, 4)
}

func TestTimeseries_ResultsPreviousResultsPair(t *testing.T) {
	payload := decode(t, `{
		"results":[{"beginTimeSeconds":1700000000,"count":5}],
		"previousResults":[{"beginTimeSeconds":1699996400,"count":3}]
	}`)

	series := Timeseries(payload, Options{Hints: []string{"count"}})

	require.Len(t, series, 2)
	assert.Equal(t, "current", labelValue(series[0], "comparison_period"))
	assert.Equal(t, "previous", labelValue(series[1], "comparison_period"))
}

func TestTimeseries_NullValuesSkippedNotZeroFilled(t *testing.T) {
	payload := decode(t, `{"results":[
		{"beginTimeSeconds":1700000000,"count":null},
		{"beginTimeSeconds":1700000060,"count":2}
	]}`)

	series := Timeseries(payload, Options{Hints: []string{"count"}})

	require.Len(t, series, 1)
	require.Len(t, series[0].Datapoints, 1)
	assert.Equal(t, 2.0, series[0].Datapoints[0].Value)
}

func TestTimeseries_NeverPanicsOnMalformedInput(t *testing.T) {
	payloads := []string{
		`{}`,
		`{"results":"not-a-list"}`,
		`{"results":[1,2,3]}`,
		`{"facets":[{"name":{"weird":true}}]}`,
		`{"current":"x","previous":"y"}`,
		`{"results":[{"no":"timestamp"}]}`,
	}
	for _, raw := range payloads {
		series := Timeseries(decode(t, raw), Options{Hints: []string{"count"}})
		assert.Empty(t, series, "payload: %s", raw)
	}
	assert.Empty(t, Timeseries(nil, Options{}))
}

func TestExtractValue_ProbeOrder(t *testing.T) {
	hints := []string{"count", "average"}

	// declared alias wins
	v, ok := ExtractValue(map[string]any{"p99": 1.5, "count": 2.0}, "p99", hints)
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	// nested results[0] aggregate
	v, ok = ExtractValue(map[string]any{
		"beginTimeSeconds": 1700000000.0,
		"results":          []any{map[string]any{"average": 3.5}},
	}, "", hints)
	require.True(t, ok)
	assert.Equal(t, 3.5, v)

	// percentile sub-object
	v, ok = ExtractValue(map[string]any{
		"results": []any{map[string]any{"count": map[string]any{"95": 9.9}}},
	}, "", hints)
	require.True(t, ok)
	assert.Equal(t, 9.9, v)

	// first-numeric fallback skips metadata keys
	v, ok = ExtractValue(map[string]any{
		"beginTimeSeconds": 1700000000.0,
		"endTimeSeconds":   1700000060.0,
		"throughput":       42.0,
	}, "", hints)
	require.True(t, ok)
	assert.Equal(t, 42.0, v)

	_, ok = ExtractValue(map[string]any{"beginTimeSeconds": 1700000000.0}, "", hints)
	assert.False(t, ok)
}

func TestPromMatrix_SingleSeries(t *testing.T) {
	payload := decode(t, `{"data":{"result":[
		{"metric":{"host":"a"},"values":[["1700000000","1.5"]]}
	]}}`)

	series := PromMatrix(payload)

	require.Len(t, series, 1)
	assert.Equal(t, []models.Label{{Name: "host", Value: "a"}}, series[0].Labels)
	require.Len(t, series[0].Datapoints, 1)
	assert.Equal(t, int64(1700000000000), series[0].Datapoints[0].TimestampMillis)
	assert.Equal(t, 1.5, series[0].Datapoints[0].Value)
}

func TestPromMatrix_MalformedInputs(t *testing.T) {
	for _, raw := range []string{`{}`, `{"data":{}}`, `{"data":{"result":"x"}}`, `{"data":{"result":[{"values":[["x","y"]]}]}}`} {
		assert.Empty(t, PromMatrix(decode(t, raw)))
	}
}

func TestNormalizeMillis(t *testing.T) {
	assert.Equal(t, int64(1700000000000), NormalizeMillis(1700000000))      // seconds
	assert.Equal(t, int64(1700000000000), NormalizeMillis(1700000000000))   // already ms
	assert.Equal(t, int64(1700000000500), NormalizeMillis(1700000000.5))    // float seconds
}

func TestLogCountSeries(t *testing.T) {
	now := func() time.Time { return time.UnixMilli(1700000000000) }
	series := LogCountSeries(37, Options{Now: now, BaseLabels: []models.Label{{Name: "query", Value: "q"}}})

	require.Len(t, series, 1)
	require.Len(t, series[0].Datapoints, 1)
	assert.Equal(t, 37.0, series[0].Datapoints[0].Value)
	assert.Equal(t, int64(1700000000000), series[0].Datapoints[0].TimestampMillis)
}

func TestTableRows_StringifiesEverything(t *testing.T) {
	records := []map[string]any{{
		"service": "checkout",
		"count":   12.0,
		"meta":    map[string]any{"region": "us-east"},
		"tags":    []any{"a", "b"},
		"missing": nil,
	}}

	rows := TableRows(records, nil)

	require.Len(t, rows, 1)
	byName := map[string]string{}
	for _, c := range rows[0].Columns {
		byName[c.Name] = c.Value
	}
	assert.Equal(t, "checkout", byName["service"])
	assert.Equal(t, "12", byName["count"])
	assert.JSONEq(t, `{"region":"us-east"}`, byName["meta"])
	assert.JSONEq(t, `["a","b"]`, byName["tags"])
	assert.Equal(t, "", byName["missing"])
}

func TestNDJSONRecords(t *testing.T) {
	body := "{\"result\":{\"msg\":\"a\"}}\n\nnot-json\n{\"msg\":\"b\"}\n"
	records := NDJSONRecords(body)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0]["msg"])
	assert.Equal(t, "b", records[1]["msg"])
}
