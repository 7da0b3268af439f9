package flatten

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

// metadataKeys are never mistaken for a datapoint value by the
// first-numeric fallback.
var metadataKeys = map[string]bool{
	"beginTimeSeconds": true,
	"endTimeSeconds":   true,
	"timestamp":        true,
	"time":             true,
	"facet":            true,
	"offset_seconds":   true,
	"comparisonCount":  true,
}

// Options tunes one flattening pass.
type Options struct {
	// AggregateAlias is the result alias declared by the query (NRQL "AS x"),
	// probed first during value extraction.
	AggregateAlias string
	// Hints are the dialect's aggregate key names, probed after the alias.
	Hints []string
	Unit  string
	// BaseLabels are prepended to every emitted series (widget name etc.).
	BaseLabels []models.Label
	Logger     logger.Logger
	Now        func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) warn(msg string, fields ...interface{}) {
	if o.Logger != nil {
		o.Logger.Warn(msg, fields...)
	}
}

// Timeseries flattens a vendor response into labeled series. Faceted
// responses emit one series per facet value with a "facet" label; compared
// responses emit series for both periods tagged with a "comparison_period"
// label. Unrecognized payloads yield an empty slice, never an error.
func Timeseries(payload map[string]any, opts Options) []models.LabeledSeries {
	shape := Detect(payload)

	var series []models.LabeledSeries
	appendSeries := func(records []map[string]any, extra ...models.Label) {
		labels := append(append([]models.Label{}, opts.BaseLabels...), extra...)
		if s, ok := seriesFromRecords(records, labels, opts); ok {
			series = append(series, s)
		}
	}

	switch shape.Kind {
	case KindFaceted:
		for _, f := range shape.Facets {
			appendSeries(f.Records, models.Label{Name: "facet", Value: f.Name})
		}

	case KindComparedResults:
		appendSeries(shape.Current, models.Label{Name: "comparison_period", Value: "current"})
		appendSeries(shape.Previous, models.Label{Name: "comparison_period", Value: "previous"})

	case KindComparedCurrentPrevious:
		if len(shape.CurrentFacets) > 0 || len(shape.PreviousFacets) > 0 {
			for _, f := range shape.CurrentFacets {
				appendSeries(f.Records,
					models.Label{Name: "comparison_period", Value: "current"},
					models.Label{Name: "facet", Value: f.Name})
			}
			for _, f := range shape.PreviousFacets {
				appendSeries(f.Records,
					models.Label{Name: "comparison_period", Value: "previous"},
					models.Label{Name: "facet", Value: f.Name})
			}
		} else {
			appendSeries(shape.Current, models.Label{Name: "comparison_period", Value: "current"})
			appendSeries(shape.Previous, models.Label{Name: "comparison_period", Value: "previous"})
		}

	case KindNonFaceted:
		appendSeries(shape.Records)

	default:
		opts.warn("unrecognized response structure; returning no series")
	}

	return series
}

// seriesFromRecords builds one series from timestamped records. Records
// yielding no timestamp or no numeric value are skipped, not zero-filled.
func seriesFromRecords(records []map[string]any, labels []models.Label, opts Options) (models.LabeledSeries, bool) {
	datapoints := make([]models.Datapoint, 0, len(records))
	for _, rec := range records {
		ts, ok := recordTimestampMillis(rec)
		if !ok {
			opts.warn("record has no usable timestamp; skipping datapoint")
			continue
		}
		val, ok := ExtractValue(rec, opts.AggregateAlias, opts.Hints)
		if !ok {
			opts.warn("record has no numeric value; skipping datapoint")
			continue
		}
		datapoints = append(datapoints, models.Datapoint{TimestampMillis: ts, Value: val})
	}

	if len(datapoints) == 0 {
		return models.LabeledSeries{}, false
	}
	return models.LabeledSeries{Labels: labels, Unit: opts.Unit, Datapoints: datapoints}, true
}

// ExtractValue pulls the numeric value out of a single timestamped record.
// Probe order: the declared aggregate alias, a nested results[0] aggregate
// (by hint name, including percentile sub-objects), then the first numeric
// field not in the metadata exclusion set.
func ExtractValue(record map[string]any, alias string, hints []string) (float64, bool) {
	if alias != "" {
		if v, ok := numeric(record[alias]); ok {
			return v, true
		}
	}

	if nested := recordList(record["results"]); len(nested) > 0 {
		if v, ok := aggregateValue(nested[0], hints); ok {
			return v, true
		}
	}

	if v, ok := aggregateValue(record, hints); ok {
		return v, true
	}

	// Last resort: first numeric field that is not response metadata. The
	// pick is ambiguous when a record carries several numeric fields; keys
	// are sorted so at least the choice is deterministic.
	keys := make([]string, 0, len(record))
	for k := range record {
		if !metadataKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := numeric(record[k]); ok {
			return v, true
		}
	}
	return 0, false
}

// aggregateValue probes the hint keys on one record, accepting plain
// numbers and percentile-style sub-objects.
func aggregateValue(record map[string]any, hints []string) (float64, bool) {
	for _, hint := range hints {
		v, present := record[hint]
		if !present {
			continue
		}
		if n, ok := numeric(v); ok {
			return n, true
		}
		if sub, ok := v.(map[string]any); ok {
			if n, ok := numeric(sub["score"]); ok {
				return n, true
			}
			// percentile objects keyed by quantile, e.g. {"95": 1.2}
			subKeys := make([]string, 0, len(sub))
			for k := range sub {
				subKeys = append(subKeys, k)
			}
			sort.Strings(subKeys)
			for _, k := range subKeys {
				if n, ok := numeric(sub[k]); ok {
					return n, true
				}
			}
		}
	}
	return 0, false
}

// recordTimestampMillis normalizes a record timestamp to
// milliseconds-since-epoch whether the vendor sent seconds, float seconds,
// or milliseconds.
func recordTimestampMillis(record map[string]any) (int64, bool) {
	for _, key := range []string{"beginTimeSeconds", "timestamp", "time"} {
		if v, present := record[key]; present {
			if ts, ok := numeric(v); ok {
				return NormalizeMillis(ts), true
			}
		}
	}
	return 0, false
}

// NormalizeMillis converts an epoch value of unknown unit to milliseconds.
// Values at or above 1e12 are already milliseconds; everything else is
// treated as (possibly fractional) seconds.
func NormalizeMillis(epoch float64) int64 {
	if epoch >= 1e12 {
		return int64(epoch)
	}
	return int64(epoch * 1000)
}

// numeric coerces JSON number representations. Strings are accepted because
// several vendors stringify values in range responses.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// LogCountSeries degrades a list of raw log records into a single-point
// series whose value is the record count, stamped now. Used when a vendor
// has no numeric aggregation endpoint for the query.
func LogCountSeries(count int, opts Options) []models.LabeledSeries {
	labels := append([]models.Label{}, opts.BaseLabels...)
	return []models.LabeledSeries{{
		Labels: labels,
		Unit:   opts.Unit,
		Datapoints: []models.Datapoint{{
			TimestampMillis: opts.now().UnixMilli(),
			Value:           float64(count),
		}},
	}}
}
