package sources

import (
	"context"
	"fmt"
	"strings"

	lucene "github.com/grindlemire/go-lucene"

	"github.com/playbookd/sourcekit/internal/assets"
	"github.com/playbookd/sourcekit/internal/clients"
	"github.com/playbookd/sourcekit/internal/flatten"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/internal/querykit"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const (
	TaskCoralogixLogs    = "fetch_logs"
	TaskCoralogixMetrics = "fetch_metrics"
)

// CoralogixManager executes DataPrime log queries, PromQL metric queries
// and dashboard widget fan-outs.
type CoralogixManager struct {
	deps Deps
	http *clients.HTTPClient
	log  logger.Logger
}

func NewCoralogixManager(deps Deps) *CoralogixManager {
	return &CoralogixManager{
		deps: deps,
		http: deps.httpClient(models.SourceCoralogix),
		log:  deps.Logger.With("source", models.SourceCoralogix),
	}
}

func (m *CoralogixManager) Source() models.Source { return models.SourceCoralogix }

func (m *CoralogixManager) TaskTypes() []string {
	return []string{TaskCoralogixLogs, TaskCoralogixMetrics, TaskFetchDashboardWidgets}
}

func (m *CoralogixManager) client(connector *models.Connector) (*clients.CoralogixClient, error) {
	creds, err := connector.RequireCredentials(models.KeyAPIKey, models.KeyAPIDomain)
	if err != nil {
		return nil, err
	}
	return clients.NewCoralogixClient(m.http, creds), nil
}

func (m *CoralogixManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	client, err := m.client(connector)
	if err != nil {
		return err
	}
	return client.TestConnection(ctx)
}

func (m *CoralogixManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	client, err := m.client(connector)
	if err != nil {
		return nil, err
	}
	switch task.Type {
	case TaskCoralogixLogs:
		return m.executeFetchLogs(ctx, tr, task, client)
	case TaskCoralogixMetrics:
		return m.executeFetchMetrics(ctx, tr, task, client)
	case TaskFetchDashboardWidgets:
		return m.executeDashboardWidgets(ctx, tr, task, connector, client)
	default:
		return nil, fmt.Errorf("coralogix: unknown task type %q", task.Type)
	}
}

func (m *CoralogixManager) executeFetchLogs(ctx context.Context, tr models.TimeRange, task *models.Task, client *clients.CoralogixClient) ([]models.TaskResult, error) {
	var params models.CoralogixLogsTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	query := params.Query
	if strings.TrimSpace(query) == "" {
		query = "*"
	}

	syntax := clients.CoralogixSyntaxLucene
	if strings.EqualFold(params.Syntax, "dataprime") {
		syntax = clients.CoralogixSyntaxDataPrime
	} else if query != "*" {
		// Validate Lucene syntax before spending an upstream call.
		if _, err := lucene.Parse(query); err != nil {
			return nil, fmt.Errorf("coralogix: invalid lucene query %q: %w", query, err)
		}
	}

	body, err := client.QueryLogs(ctx, query, syntax, tr, params.Limit)
	if err != nil {
		return nil, err
	}

	records := flatten.NDJSONRecords(string(body))
	metadata := map[string]any{
		"query":      query,
		"start_time": tr.StartMillis(),
		"end_time":   tr.EndMillis(),
	}
	if len(records) == 0 {
		msg := fmt.Sprintf("No logs returned from Coralogix for query: %s", query)
		return []models.TaskResult{
			models.NewTextResult(models.SourceCoralogix, msg).WithMetadata(metadata),
		}, nil
	}

	logs := make([]any, 0, len(records))
	for _, r := range records {
		logs = append(logs, r)
	}
	result := models.NewAPIResponseResult(models.SourceCoralogix, 200, map[string]any{
		"logs":  logs,
		"count": len(records),
	}).WithMetadata(metadata)
	return []models.TaskResult{result}, nil
}

func (m *CoralogixManager) executeFetchMetrics(ctx context.Context, tr models.TimeRange, task *models.Task, client *clients.CoralogixClient) ([]models.TaskResult, error) {
	var params models.CoralogixMetricsTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.PromQL) == "" {
		return nil, fmt.Errorf("coralogix: promql is required")
	}

	step := querykit.BucketSeconds(tr.SpanSeconds())
	payload, err := client.QueryMetricsRange(ctx, params.PromQL, tr, step)
	if err != nil {
		return nil, err
	}

	series := flatten.PromMatrix(payload)
	if len(series) == 0 {
		msg := fmt.Sprintf("No metric data returned from Coralogix for query: %s", params.PromQL)
		return []models.TaskResult{models.NewTextResult(models.SourceCoralogix, msg)}, nil
	}
	result := models.NewTimeseriesResult(models.SourceCoralogix, params.PromQL, params.PromQL, series).
		WithMetadata(map[string]any{
			"query":      params.PromQL,
			"step":       step,
			"start_time": tr.StartMillis(),
			"end_time":   tr.EndMillis(),
		})
	return []models.TaskResult{result}, nil
}

func (m *CoralogixManager) executeDashboardWidgets(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector, client *clients.CoralogixClient) ([]models.TaskResult, error) {
	var params models.CoralogixDashboardWidgetsTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if params.DashboardID == "" {
		return nil, fmt.Errorf("coralogix: dashboard_id is required")
	}

	key := assets.Key{
		ConnectorType: connector.Type,
		ConnectorID:   connector.ID,
		AssetType:     "dashboard",
		AssetID:       params.DashboardID,
	}
	detail, err := m.deps.Assets.Get(ctx, key, func(ctx context.Context) (map[string]any, error) {
		return client.FetchDashboardDetail(ctx, params.DashboardID)
	})
	if err != nil {
		return nil, err
	}

	vars := coralogixTemplateVariables(detail)
	for name, v := range params.TemplateVariables {
		vars[name] = v
	}

	queries := coralogixWidgetQueries(detail, params.WidgetIDs, vars)
	if len(queries) == 0 {
		msg := fmt.Sprintf("No valid widget queries found for dashboard ID: %s", params.DashboardID)
		return []models.TaskResult{models.NewTextResult(models.SourceCoralogix, msg)}, nil
	}

	step := querykit.BucketSeconds(tr.SpanSeconds())
	var results []models.TaskResult
	for _, wq := range queries {
		result, err := m.executeWidgetQuery(ctx, tr, client, wq, step)
		if err != nil {
			m.log.Warn("widget query failed", "widget", wq.widgetID, "error", err)
			msg := fmt.Sprintf("Error executing widget %s: %v", wq.widgetID, err)
			results = append(results, models.NewTextResult(models.SourceCoralogix, msg))
			continue
		}
		if result != nil {
			results = append(results, *result)
		}
	}
	if len(results) == 0 {
		msg := fmt.Sprintf("No data found for widgets in dashboard %s", params.DashboardID)
		return []models.TaskResult{models.NewTextResult(models.SourceCoralogix, msg)}, nil
	}
	return results, nil
}

type coralogixWidgetQuery struct {
	widgetID  string
	title     string
	queryType string // "metrics", "logs" or "logs_table"
	query     string
	columns   []string
}

func (m *CoralogixManager) executeWidgetQuery(ctx context.Context, tr models.TimeRange, client *clients.CoralogixClient, wq coralogixWidgetQuery, step int64) (*models.TaskResult, error) {
	switch wq.queryType {
	case "metrics":
		payload, err := client.QueryMetricsRange(ctx, wq.query, tr, step)
		if err != nil {
			return nil, err
		}
		series := flatten.PromMatrix(payload)
		if len(series) == 0 {
			return nil, nil
		}
		result := models.NewTimeseriesResult(models.SourceCoralogix, wq.title, wq.query, series)
		return &result, nil

	case "logs":
		body, err := client.QueryLogs(ctx, wq.query, clients.CoralogixSyntaxLucene, tr, 1000)
		if err != nil {
			return nil, err
		}
		records := flatten.NDJSONRecords(string(body))
		// A bare log list has no timestamps to chart, so it degrades
		// to one count datapoint stamped now.
		series := flatten.LogCountSeries(len(records), flatten.Options{
			BaseLabels: []models.Label{{Name: "widget", Value: wq.title}},
			Logger:     m.log,
		})
		result := models.NewTimeseriesResult(models.SourceCoralogix, wq.title, wq.query, series)
		return &result, nil

	case "logs_table":
		body, err := client.QueryLogs(ctx, wq.query, clients.CoralogixSyntaxDataPrime, tr, 1000)
		if err != nil {
			return nil, err
		}
		records := flatten.NDJSONRecords(string(body))
		if len(records) == 0 {
			return nil, nil
		}
		rows := flatten.TableRows(records, wq.columns)
		result := models.NewTableResult(models.SourceCoralogix, &models.TableResult{
			RawQuery:   wq.query,
			TotalCount: uint64(len(rows)),
			Rows:       rows,
		})
		return &result, nil
	}
	return nil, fmt.Errorf("unsupported widget query type %q", wq.queryType)
}

// coralogixTemplateVariables pulls current variable values from the
// dashboard definition.
func coralogixTemplateVariables(detail map[string]any) map[string]any {
	out := make(map[string]any)
	dashboard, _ := detail["dashboard"].(map[string]any)
	variables, _ := dashboard["variables"].([]any)
	for _, v := range variables {
		variable, ok := v.(map[string]any)
		if !ok {
			continue
		}
		name, _ := variable["name"].(string)
		if name == "" {
			continue
		}
		out[name] = digAny(variable, "definition", "multiSelect", "selection")
		if out[name] == nil {
			out[name] = variable["value"]
		}
	}
	return out
}

// coralogixWidgetQueries walks the dashboard layout
// (sections > rows > widgets) and extracts the executable query of each
// widget type we understand.
func coralogixWidgetQueries(detail map[string]any, widgetIDs []string, vars map[string]any) []coralogixWidgetQuery {
	dashboard, _ := detail["dashboard"].(map[string]any)
	sections, _ := digAny(dashboard, "layout").(map[string]any)
	sectionList, _ := sections["sections"].([]any)

	filter := make(map[string]bool, len(widgetIDs))
	for _, id := range widgetIDs {
		filter[id] = true
	}

	var out []coralogixWidgetQuery
	for _, s := range sectionList {
		section, ok := s.(map[string]any)
		if !ok {
			continue
		}
		rows, _ := section["rows"].([]any)
		for _, r := range rows {
			row, ok := r.(map[string]any)
			if !ok {
				continue
			}
			widgets, _ := row["widgets"].([]any)
			for _, w := range widgets {
				widget, ok := w.(map[string]any)
				if !ok {
					continue
				}
				id := coralogixWidgetID(widget)
				if len(filter) > 0 && !filter[id] {
					continue
				}
				title, _ := widget["title"].(string)
				if title == "" {
					title = "Widget " + id
				}
				definition, _ := widget["definition"].(map[string]any)
				out = append(out, widgetDefinitionQueries(id, title, definition, vars)...)
			}
		}
	}
	return out
}

func coralogixWidgetID(widget map[string]any) string {
	switch id := widget["id"].(type) {
	case map[string]any:
		v, _ := id["value"].(string)
		return v
	case string:
		return id
	}
	return ""
}

func widgetDefinitionQueries(id, title string, definition map[string]any, vars map[string]any) []coralogixWidgetQuery {
	var out []coralogixWidgetQuery

	// lineChart and barChart carry PromQL query definitions.
	for _, chartKey := range []string{"lineChart", "barChart"} {
		chart, ok := definition[chartKey].(map[string]any)
		if !ok {
			continue
		}
		defs, _ := chart["queryDefinitions"].([]any)
		for _, d := range defs {
			def, ok := d.(map[string]any)
			if !ok {
				continue
			}
			promql, _ := digAny(def, "query", "metrics", "promqlQuery", "value").(string)
			if promql == "" {
				continue
			}
			out = append(out, coralogixWidgetQuery{
				widgetID:  id,
				title:     title,
				queryType: "metrics",
				query:     querykit.ResolveTemplateVariables(promql, vars),
			})
		}
	}

	if dataprime, ok := definition["dataPrime"].(map[string]any); ok {
		defs, _ := dataprime["queryDefinitions"].([]any)
		for _, d := range defs {
			def, ok := d.(map[string]any)
			if !ok {
				continue
			}
			query, _ := digAny(def, "query", "logs", "dataprimeQuery", "value").(string)
			if query == "" {
				continue
			}
			out = append(out, coralogixWidgetQuery{
				widgetID:  id,
				title:     title,
				queryType: "logs",
				query:     querykit.ResolveTemplateVariables(query, vars),
			})
		}
	}

	if table, ok := definition["dataTable"].(map[string]any); ok {
		query, _ := digAny(table, "query", "dataprime", "dataprimeQuery", "text").(string)
		if query != "" {
			var columns []string
			rawColumns, _ := table["columns"].([]any)
			for _, c := range rawColumns {
				if col, ok := c.(map[string]any); ok {
					if field, _ := col["field"].(string); field != "" {
						columns = append(columns, field)
					}
				}
			}
			out = append(out, coralogixWidgetQuery{
				widgetID:  id,
				title:     title,
				queryType: "logs_table",
				query:     querykit.ResolveTemplateVariables(strings.Join(strings.Fields(query), " "), vars),
				columns:   columns,
			})
		}
	}
	return out
}
