// Package flatten converts nested vendor JSON responses into the uniform
// series and table shapes. It never returns an error: unrecognized or
// malformed payloads degrade to empty output, because vendor response
// shapes drift and a hard failure is worse than a degraded result.
package flatten

import (
	"fmt"
	"strings"
)

// Kind tags the structural variant of a vendor response. Shapes are
// mutually exclusive per response; detection stops at the first match.
type Kind int

const (
	KindUnknown Kind = iota
	KindFaceted
	KindNonFaceted
	KindComparedResults         // flat results/previousResults pair
	KindComparedCurrentPrevious // current/previous wrapper pair
)

// Facet is one group of a faceted response.
type Facet struct {
	Name    string
	Records []map[string]any
}

// Shape is the decoded-once variant of a response, replacing ad hoc
// key-probing inside every helper.
type Shape struct {
	Kind    Kind
	Records []map[string]any // non-faceted
	Facets  []Facet          // faceted

	Current  []map[string]any // compared, non-faceted
	Previous []map[string]any

	CurrentFacets  []Facet // compared, faceted
	PreviousFacets []Facet
}

// Detect probes payload for known keys in priority order: facets under a
// raw-response wrapper, results with inline facet keys, a flat
// results/previousResults pair, then a current/previous pair.
func Detect(payload map[string]any) Shape {
	if payload == nil {
		return Shape{Kind: KindUnknown}
	}

	if facets := facetGroups(payload); len(facets) > 0 {
		return Shape{Kind: KindFaceted, Facets: facets}
	}

	results := recordList(payload["results"])
	previous := recordList(payload["previousResults"])
	if len(results) > 0 && previous != nil {
		return Shape{Kind: KindComparedResults, Current: results, Previous: previous}
	}

	if cur, curOK := payload["current"].(map[string]any); curOK {
		if prev, prevOK := payload["previous"].(map[string]any); prevOK {
			curFacets := facetGroups(cur)
			prevFacets := facetGroups(prev)
			if len(curFacets) > 0 || len(prevFacets) > 0 {
				return Shape{
					Kind:           KindComparedCurrentPrevious,
					CurrentFacets:  curFacets,
					PreviousFacets: prevFacets,
				}
			}
			return Shape{
				Kind:     KindComparedCurrentPrevious,
				Current:  periodRecords(cur),
				Previous: periodRecords(prev),
			}
		}
	}

	if len(results) > 0 {
		if inline := inlineFacetGroups(results); len(inline) > 0 {
			return Shape{Kind: KindFaceted, Facets: inline}
		}
		return Shape{Kind: KindNonFaceted, Records: results}
	}

	return Shape{Kind: KindUnknown}
}

// facetGroups pulls facet groups from v["facets"] or v["rawResponse"]["facets"].
func facetGroups(v map[string]any) []Facet {
	raw, ok := v["facets"].([]any)
	if !ok {
		if wrapper, wok := v["rawResponse"].(map[string]any); wok {
			raw, ok = wrapper["facets"].([]any)
		}
	}
	if !ok {
		return nil
	}

	facets := make([]Facet, 0, len(raw))
	for _, item := range raw {
		group, gok := item.(map[string]any)
		if !gok {
			continue
		}
		records := recordList(group["timeSeries"])
		if records == nil {
			records = recordList(group["results"])
		}
		facets = append(facets, Facet{Name: facetName(group["name"]), Records: records})
	}
	return facets
}

// inlineFacetGroups regroups flat result records that carry their facet
// value inline under a "facet" key.
func inlineFacetGroups(records []map[string]any) []Facet {
	var order []string
	grouped := map[string][]map[string]any{}
	for _, rec := range records {
		fv, ok := rec["facet"]
		if !ok {
			return nil
		}
		name := facetName(fv)
		if _, seen := grouped[name]; !seen {
			order = append(order, name)
		}
		grouped[name] = append(grouped[name], rec)
	}

	facets := make([]Facet, 0, len(order))
	for _, name := range order {
		facets = append(facets, Facet{Name: name, Records: grouped[name]})
	}
	return facets
}

// periodRecords finds the datapoint list of one comparison period, which
// vendors put under either "timeSeries" or "results".
func periodRecords(period map[string]any) []map[string]any {
	if recs := recordList(period["timeSeries"]); recs != nil {
		return recs
	}
	return recordList(period["results"])
}

// facetName renders a facet value as a string; multi-part facet tuples are
// joined with " | ".
func facetName(v any) string {
	switch f := v.(type) {
	case nil:
		return "unknown_facet"
	case string:
		return f
	case []any:
		parts := make([]string, 0, len(f))
		for _, p := range f {
			parts = append(parts, fmt.Sprintf("%v", p))
		}
		return strings.Join(parts, " | ")
	default:
		return fmt.Sprintf("%v", f)
	}
}

// recordList coerces a decoded JSON array into a list of object records.
// Returns nil when v is not an array; non-object members are skipped.
func recordList(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	records := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if rec, rok := item.(map[string]any); rok {
			records = append(records, rec)
		}
	}
	return records
}
