package models

import "google.golang.org/protobuf/types/known/structpb"

// Source identifies which vendor integration produced a task result.
type Source string

const (
	SourceNewRelic   Source = "newrelic"
	SourceGrafana    Source = "grafana"
	SourceCoralogix  Source = "coralogix"
	SourceSignoz     Source = "signoz"
	SourceClickHouse Source = "clickhouse"
	SourceSQL        Source = "sql"
	SourcePostHog    Source = "posthog"
	SourceOpsGenie   Source = "opsgenie"
	SourceRender     Source = "render"
	SourceBash       Source = "bash"
	SourceKubernetes Source = "kubernetes"
)

// ResultType tags the variant carried by a TaskResult.
type ResultType string

const (
	ResultTypeTimeseries  ResultType = "timeseries"
	ResultTypeTable       ResultType = "table"
	ResultTypeText        ResultType = "text"
	ResultTypeAPIResponse ResultType = "api_response"
)

// Label is one (name, value) pair on a series. Labels are ordered and not
// required to be unique across series: faceted responses produce one series
// per facet value, all sharing the metric name.
type Label struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Datapoint is a single (timestamp, value) sample. Timestamps are always
// milliseconds-since-epoch regardless of what unit the vendor returned.
type Datapoint struct {
	TimestampMillis int64   `json:"timestamp"`
	Value           float64 `json:"value"`
}

// LabeledSeries is one flattened series of a timeseries result.
type LabeledSeries struct {
	Labels     []Label     `json:"labels"`
	Unit       string      `json:"unit,omitempty"`
	Datapoints []Datapoint `json:"datapoints"`
}

type TimeseriesResult struct {
	MetricName       string          `json:"metric_name"`
	MetricExpression string          `json:"metric_expression"`
	Series           []LabeledSeries `json:"series"`
}

// TableColumn holds a stringified cell. All values are stringified on
// purpose; nested objects are JSON-encoded into the cell.
type TableColumn struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type TableRow struct {
	Columns []TableColumn `json:"columns"`
}

type TableResult struct {
	RawQuery   string     `json:"raw_query"`
	TotalCount uint64     `json:"total_count"`
	Limit      uint64     `json:"limit,omitempty"`
	Offset     uint64     `json:"offset,omitempty"`
	Rows       []TableRow `json:"rows"`
}

type TextResult struct {
	Message string `json:"message"`
}

type APIResponseResult struct {
	StatusCode int            `json:"status_code"`
	Body       map[string]any `json:"body"`
}

// TaskResult is the tagged union every executor returns. Exactly one of the
// variant pointers matching Type is set. Metadata optionally carries a deep
// link back into the vendor UI.
type TaskResult struct {
	Type        ResultType         `json:"type"`
	Source      Source             `json:"source"`
	Timeseries  *TimeseriesResult  `json:"timeseries,omitempty"`
	Table       *TableResult       `json:"table,omitempty"`
	Text        *TextResult        `json:"text,omitempty"`
	APIResponse *APIResponseResult `json:"api_response,omitempty"`
	Metadata    *structpb.Struct   `json:"metadata,omitempty"`
}

func NewTextResult(source Source, message string) TaskResult {
	return TaskResult{
		Type:   ResultTypeText,
		Source: source,
		Text:   &TextResult{Message: message},
	}
}

func NewTimeseriesResult(source Source, metricName, expression string, series []LabeledSeries) TaskResult {
	return TaskResult{
		Type:   ResultTypeTimeseries,
		Source: source,
		Timeseries: &TimeseriesResult{
			MetricName:       metricName,
			MetricExpression: expression,
			Series:           series,
		},
	}
}

func NewTableResult(source Source, table *TableResult) TaskResult {
	return TaskResult{Type: ResultTypeTable, Source: source, Table: table}
}

func NewAPIResponseResult(source Source, statusCode int, body map[string]any) TaskResult {
	return TaskResult{
		Type:        ResultTypeAPIResponse,
		Source:      source,
		APIResponse: &APIResponseResult{StatusCode: statusCode, Body: body},
	}
}

// WithMetadata attaches vendor deep-link metadata built from a plain map.
// Maps that structpb cannot represent are dropped silently; metadata is a
// convenience output, never load-bearing.
func (r TaskResult) WithMetadata(fields map[string]any) TaskResult {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return r
	}
	r.Metadata = s
	return r
}
