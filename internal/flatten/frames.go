package flatten

import (
	"sort"

	"github.com/playbookd/sourcekit/internal/models"
)

// DataFrames flattens a Grafana /api/ds/query response into labeled
// series. The payload shape is results.<refId>.frames[], each frame
// carrying a schema with typed fields and column-oriented data values.
// Malformed frames are skipped.
func DataFrames(payload map[string]any) []models.LabeledSeries {
	results, ok := payload["results"].(map[string]any)
	if !ok {
		return nil
	}

	refIDs := make([]string, 0, len(results))
	for refID := range results {
		refIDs = append(refIDs, refID)
	}
	sort.Strings(refIDs)

	var out []models.LabeledSeries
	for _, refID := range refIDs {
		res, ok := results[refID].(map[string]any)
		if !ok {
			continue
		}
		frames, _ := res["frames"].([]any)
		for _, f := range frames {
			frame, ok := f.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, frameSeries(frame, refID)...)
		}
	}
	return out
}

func frameSeries(frame map[string]any, refID string) []models.LabeledSeries {
	fields := frameFields(frame)
	values, _ := digFrame(frame, "data", "values").([]any)
	if len(fields) == 0 || len(values) != len(fields) {
		return nil
	}

	timeIdx := -1
	for i, field := range fields {
		if field.fieldType == "time" {
			timeIdx = i
			break
		}
	}
	if timeIdx < 0 {
		return nil
	}
	timestamps, _ := values[timeIdx].([]any)

	var out []models.LabeledSeries
	for i, field := range fields {
		if i == timeIdx {
			continue
		}
		column, _ := values[i].([]any)
		var datapoints []models.Datapoint
		for j, raw := range column {
			if j >= len(timestamps) {
				break
			}
			val, ok := numeric(raw)
			if !ok {
				continue
			}
			ts, ok := numeric(timestamps[j])
			if !ok {
				continue
			}
			datapoints = append(datapoints, models.Datapoint{
				TimestampMillis: NormalizeMillis(ts),
				Value:           val,
			})
		}
		if len(datapoints) == 0 {
			continue
		}

		labels := []models.Label{{Name: "ref_id", Value: refID}}
		if field.name != "" && field.name != "Value" {
			labels = append(labels, models.Label{Name: "field", Value: field.name})
		}
		keys := make([]string, 0, len(field.labels))
		for k := range field.labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			labels = append(labels, models.Label{Name: k, Value: field.labels[k]})
		}

		out = append(out, models.LabeledSeries{Labels: labels, Datapoints: datapoints})
	}
	return out
}

type frameField struct {
	name      string
	fieldType string
	labels    map[string]string
}

func frameFields(frame map[string]any) []frameField {
	raw, _ := digFrame(frame, "schema", "fields").([]any)
	out := make([]frameField, 0, len(raw))
	for _, f := range raw {
		field, ok := f.(map[string]any)
		if !ok {
			return nil
		}
		name, _ := field["name"].(string)
		fieldType, _ := field["type"].(string)
		labels := make(map[string]string)
		if rawLabels, ok := field["labels"].(map[string]any); ok {
			for k, v := range rawLabels {
				if s, ok := v.(string); ok {
					labels[k] = s
				}
			}
		}
		out = append(out, frameField{name: name, fieldType: fieldType, labels: labels})
	}
	return out
}

func digFrame(m map[string]any, path ...string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}
