package flatten

import (
	"sort"

	"github.com/playbookd/sourcekit/internal/models"
)

// PromMatrix flattens a Prometheus-compatible range response
// ({"data":{"result":[{"metric":{...},"values":[[ts,"v"],...]}]}}) into
// labeled series. Metric labels are emitted in sorted key order so output
// is deterministic. Malformed payloads yield an empty slice.
func PromMatrix(payload map[string]any) []models.LabeledSeries {
	data, ok := payload["data"].(map[string]any)
	if !ok {
		// some proxies return the data object directly
		data = payload
	}
	results, ok := data["result"].([]any)
	if !ok {
		return nil
	}

	series := make([]models.LabeledSeries, 0, len(results))
	for _, item := range results {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		var labels []models.Label
		if metric, ok := entry["metric"].(map[string]any); ok {
			names := make([]string, 0, len(metric))
			for name := range metric {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				if v, ok := metric[name].(string); ok {
					labels = append(labels, models.Label{Name: name, Value: v})
				}
			}
		}

		values, ok := entry["values"].([]any)
		if !ok {
			// instant queries return a single "value" pair
			if pair, pok := entry["value"].([]any); pok {
				values = []any{pair}
			}
		}

		datapoints := make([]models.Datapoint, 0, len(values))
		for _, raw := range values {
			pair, ok := raw.([]any)
			if !ok || len(pair) != 2 {
				continue
			}
			ts, tsOK := numeric(pair[0])
			val, valOK := numeric(pair[1])
			if !tsOK || !valOK {
				continue
			}
			datapoints = append(datapoints, models.Datapoint{
				TimestampMillis: NormalizeMillis(ts),
				Value:           val,
			})
		}

		if len(datapoints) > 0 {
			series = append(series, models.LabeledSeries{Labels: labels, Datapoints: datapoints})
		}
	}
	return series
}
