package models

import (
	"encoding/json"
	"fmt"
)

// Task is the resolved task envelope handed to a source manager. Params is
// the vendor-specific parameter block, decoded by the executor that owns
// the task type.
type Task struct {
	Source    Source          `json:"source"`
	Type      string          `json:"task_type"`
	TimeRange TimeRange       `json:"time_range"`
	Params    json.RawMessage `json:"params"`
}

// DecodeParams unmarshals the parameter block into the executor's typed
// struct. Unknown fields are ignored; vendors evolve their task schemas.
func (t *Task) DecodeParams(into any) error {
	if len(t.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Params, into); err != nil {
		return fmt.Errorf("invalid %s/%s task params: %w", t.Source, t.Type, err)
	}
	return nil
}

// Per-vendor task parameter blocks. Field names mirror the wire form the
// playbook engine sends.

type NRQLMetricTask struct {
	MetricName        string  `json:"metric_name"`
	Unit              string  `json:"unit"`
	NRQLExpression    string  `json:"nrql_expression"`
	TimeseriesOffsets []int64 `json:"timeseries_offsets"`
}

type NewRelicDashboardWidgetsTask struct {
	DashboardName string   `json:"dashboard_name"`
	PageName      string   `json:"page_name"`
	WidgetNames   []string `json:"widget_names"`
}

type GrafanaDatasourceQueryTask struct {
	DatasourceUID   string `json:"datasource_uid"`
	Expr            string `json:"expr"`
	IntervalSeconds int64  `json:"interval"`
}

type GrafanaDashboardPanelsTask struct {
	DashboardUID      string         `json:"dashboard_uid"`
	PanelTitles       []string       `json:"panel_titles"`
	IntervalSeconds   int64          `json:"interval"`
	TemplateVariables map[string]any `json:"template_variables"`
}

type CoralogixLogsTask struct {
	Query  string `json:"query"`
	Syntax string `json:"syntax"` // "lucene" or "dataprime"
	Limit  int    `json:"limit"`
}

type CoralogixMetricsTask struct {
	PromQL string `json:"promql"`
}

type CoralogixDashboardWidgetsTask struct {
	DashboardID       string         `json:"dashboard_id"`
	WidgetIDs         []string       `json:"widget_ids"`
	TemplateVariables map[string]any `json:"template_variables"`
}

type SignozClickhouseQueryTask struct {
	Query       string `json:"query"`
	PanelTitle  string `json:"panel_title"`
	PanelType   string `json:"panel_type"` // "graph" or "table"
	StepSeconds int64  `json:"step"`
}

type SignozBuilderQueryTask struct {
	Payload     map[string]any `json:"builder_queries"`
	PanelTitle  string         `json:"panel_title"`
	PanelType   string         `json:"panel_type"`
	StepSeconds int64          `json:"step"`
}

type SignozDashboardDataTask struct {
	DashboardName string         `json:"dashboard_name"`
	Variables     map[string]any `json:"variables"`
	StepSeconds   int64          `json:"step"`
}

type SQLQueryTask struct {
	Database       string `json:"database"`
	Query          string `json:"query"`
	TimeoutSeconds int64  `json:"timeout"`
	OrderByColumn  string `json:"order_by_column"`
	Limit          uint64 `json:"limit"`
	Offset         uint64 `json:"offset"`
}

type HogQLQueryTask struct {
	Query string `json:"query"`
}

type OpsGenieAlertsTask struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type RenderLogsTask struct {
	ServiceID string `json:"service_id"`
	Limit     int    `json:"limit"`
}

type BashCommandTask struct {
	Command    string `json:"command"`
	RemoteHost string `json:"remote_host"` // empty means run locally
}

type KubectlCommandTask struct {
	Command string `json:"command"`
}
