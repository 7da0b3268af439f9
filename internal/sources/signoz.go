package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/playbookd/sourcekit/internal/assets"
	"github.com/playbookd/sourcekit/internal/clients"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/internal/querykit"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const (
	TaskSignozClickhouseQuery = "clickhouse_query"
	TaskSignozBuilderQuery    = "builder_query"
	TaskSignozDashboardData   = "dashboard_data"
)

// SignozManager executes ClickHouse SQL panels, builder queries and
// whole-dashboard fan-outs against a Signoz instance.
type SignozManager struct {
	deps Deps
	http *clients.HTTPClient
	log  logger.Logger
}

func NewSignozManager(deps Deps) *SignozManager {
	return &SignozManager{
		deps: deps,
		http: deps.httpClient(models.SourceSignoz),
		log:  deps.Logger.With("source", models.SourceSignoz),
	}
}

func (m *SignozManager) Source() models.Source { return models.SourceSignoz }

func (m *SignozManager) TaskTypes() []string {
	return []string{TaskSignozClickhouseQuery, TaskSignozBuilderQuery, TaskSignozDashboardData}
}

func (m *SignozManager) client(connector *models.Connector) (*clients.SignozClient, error) {
	creds, err := connector.RequireCredentials(models.KeyHost)
	if err != nil {
		return nil, err
	}
	return clients.NewSignozClient(m.http, creds), nil
}

func (m *SignozManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	client, err := m.client(connector)
	if err != nil {
		return err
	}
	return client.TestConnection(ctx)
}

func (m *SignozManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	client, err := m.client(connector)
	if err != nil {
		return nil, err
	}
	switch task.Type {
	case TaskSignozClickhouseQuery:
		return m.executeClickhouseQuery(ctx, tr, task, client)
	case TaskSignozBuilderQuery:
		return m.executeBuilderQuery(ctx, tr, task, client)
	case TaskSignozDashboardData:
		return m.executeDashboardData(ctx, tr, task, connector, client)
	default:
		return nil, fmt.Errorf("signoz: unknown task type %q", task.Type)
	}
}

func (m *SignozManager) executeClickhouseQuery(ctx context.Context, tr models.TimeRange, task *models.Task, client *clients.SignozClient) ([]models.TaskResult, error) {
	var params models.SignozClickhouseQueryTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("signoz: query is required")
	}
	step := params.StepSeconds
	if step <= 0 {
		step = querykit.BucketSeconds(tr.SpanSeconds())
	}

	payload, err := client.QueryClickhouse(ctx, querykit.NormalizeSQL(params.Query), tr, step, params.PanelType)
	if err != nil {
		return nil, err
	}
	result := models.NewAPIResponseResult(models.SourceSignoz, 200, payload).
		WithMetadata(m.queryMetadata(client, params.Query, tr, step))
	return []models.TaskResult{result}, nil
}

func (m *SignozManager) executeBuilderQuery(ctx context.Context, tr models.TimeRange, task *models.Task, client *clients.SignozClient) ([]models.TaskResult, error) {
	var params models.SignozBuilderQueryTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if len(params.Payload) == 0 {
		return nil, fmt.Errorf("signoz: builder_queries is required")
	}
	step := params.StepSeconds
	if step <= 0 {
		step = querykit.BucketSeconds(tr.SpanSeconds())
	}

	payload, err := client.QueryBuilder(ctx, params.Payload, tr, step, params.PanelType)
	if err != nil {
		return nil, err
	}

	title := params.PanelTitle
	if title == "" {
		title = "Builder Query"
	}
	series := signozSeries(payload)
	if len(series) == 0 {
		result := models.NewAPIResponseResult(models.SourceSignoz, 200, payload).
			WithMetadata(m.queryMetadata(client, title, tr, step))
		return []models.TaskResult{result}, nil
	}
	result := models.NewTimeseriesResult(models.SourceSignoz, title, "", series).
		WithMetadata(m.queryMetadata(client, title, tr, step))
	return []models.TaskResult{result}, nil
}

func (m *SignozManager) executeDashboardData(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector, client *clients.SignozClient) ([]models.TaskResult, error) {
	var params models.SignozDashboardDataTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if params.DashboardName == "" {
		return nil, fmt.Errorf("signoz: dashboard_name is required")
	}

	catalogKey := assets.Key{
		ConnectorType: connector.Type,
		ConnectorID:   connector.ID,
		AssetType:     "dashboards",
		AssetID:       "catalog",
	}
	catalog, err := m.deps.Assets.Get(ctx, catalogKey, func(ctx context.Context) (map[string]any, error) {
		return client.FetchDashboards(ctx)
	})
	if err != nil {
		return nil, err
	}

	dashboardID := signozDashboardID(catalog, params.DashboardName)
	if dashboardID == "" {
		msg := fmt.Sprintf("Dashboard %q not found", params.DashboardName)
		return []models.TaskResult{models.NewTextResult(models.SourceSignoz, msg)}, nil
	}

	detailKey := assets.Key{
		ConnectorType: connector.Type,
		ConnectorID:   connector.ID,
		AssetType:     "dashboard",
		AssetID:       dashboardID,
	}
	detail, err := m.deps.Assets.Get(ctx, detailKey, func(ctx context.Context) (map[string]any, error) {
		return client.FetchDashboardDetail(ctx, dashboardID)
	})
	if err != nil {
		return nil, err
	}

	widgets, _ := digAny(detail, "data", "widgets").([]any)
	if len(widgets) == 0 {
		msg := fmt.Sprintf("No panels found in dashboard %q", params.DashboardName)
		return []models.TaskResult{models.NewTextResult(models.SourceSignoz, msg)}, nil
	}

	step := params.StepSeconds
	if step <= 0 {
		step = querykit.BucketSeconds(tr.SpanSeconds())
	}

	var results []models.TaskResult
	for _, w := range widgets {
		panel, ok := w.(map[string]any)
		if !ok {
			continue
		}
		title, _ := panel["title"].(string)
		if title == "" {
			title = "Untitled Panel"
		}
		builderQueries := panelBuilderQueries(panel, step)
		if len(builderQueries) == 0 {
			continue
		}
		panelType := signozPanelType(panel)

		payload, err := client.QueryBuilder(ctx, builderQueries, tr, step, panelType)
		if err != nil {
			m.log.Warn("panel query failed", "panel", title, "error", err)
			msg := fmt.Sprintf("Panel %q failed: %v", title, err)
			results = append(results, models.NewTextResult(models.SourceSignoz, msg))
			continue
		}
		series := signozSeries(payload)
		if len(series) == 0 {
			continue
		}
		results = append(results, models.NewTimeseriesResult(models.SourceSignoz, title, "", series).
			WithMetadata(m.queryMetadata(client, title, tr, step)))
	}
	if len(results) == 0 {
		msg := fmt.Sprintf("No data returned for any panel in dashboard %q", params.DashboardName)
		return []models.TaskResult{models.NewTextResult(models.SourceSignoz, msg)}, nil
	}
	return results, nil
}

func (m *SignozManager) queryMetadata(client *clients.SignozClient, query string, tr models.TimeRange, step int64) map[string]any {
	return map[string]any{
		"host_url":   client.HostURL(),
		"query":      query,
		"step":       step,
		"start_time": tr.StartMillis(),
		"end_time":   tr.EndMillis(),
	}
}

// signozDashboardID resolves a dashboard title to its uuid in the catalog
// response.
func signozDashboardID(catalog map[string]any, name string) string {
	items, _ := catalog["data"].([]any)
	for _, item := range items {
		d, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := digAny(d, "data", "title").(string)
		if !strings.EqualFold(title, name) {
			continue
		}
		if uuid, _ := d["uuid"].(string); uuid != "" {
			return uuid
		}
		if id, _ := d["id"].(string); id != "" {
			return id
		}
	}
	return ""
}

// panelBuilderQueries pulls builder queryData out of a panel and rewrites
// step intervals to the task's step. Only builder panels are executable
// here.
func panelBuilderQueries(panel map[string]any, step int64) map[string]any {
	queryType, _ := digAny(panel, "query", "queryType").(string)
	if queryType != "builder" {
		return nil
	}
	queryData, _ := digAny(panel, "query", "builder", "queryData").([]any)
	out := make(map[string]any, len(queryData))
	for _, q := range queryData {
		query, ok := q.(map[string]any)
		if !ok {
			continue
		}
		name, _ := query["queryName"].(string)
		if name == "" {
			continue
		}
		cloned := make(map[string]any, len(query)+1)
		for k, v := range query {
			cloned[k] = v
		}
		cloned["stepInterval"] = step
		out[name] = cloned
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func signozPanelType(panel map[string]any) string {
	for _, key := range []string{"panelTypes", "panelType", "type"} {
		if t, _ := panel[key].(string); t != "" {
			switch t {
			case "graph", "table", "value", "list":
				return t
			case "timeseries", "bar":
				return "graph"
			}
			return "graph"
		}
	}
	return "graph"
}

// signozSeries flattens the query range response's series values into
// labeled series. The response nests data.result[], each with series[] of
// labels and timestamped values.
func signozSeries(payload map[string]any) []models.LabeledSeries {
	result, _ := digAny(payload, "data", "result").([]any)
	var out []models.LabeledSeries
	for _, r := range result {
		item, ok := r.(map[string]any)
		if !ok {
			continue
		}
		queryName, _ := item["queryName"].(string)
		seriesList, _ := item["series"].([]any)
		for _, s := range seriesList {
			series, ok := s.(map[string]any)
			if !ok {
				continue
			}
			labels := []models.Label{}
			if queryName != "" {
				labels = append(labels, models.Label{Name: "query_name", Value: queryName})
			}
			if rawLabels, ok := series["labels"].(map[string]any); ok {
				for _, k := range sortedKeys(rawLabels) {
					if v, ok := rawLabels[k].(string); ok {
						labels = append(labels, models.Label{Name: k, Value: v})
					}
				}
			}
			values, _ := series["values"].([]any)
			var datapoints []models.Datapoint
			for _, v := range values {
				point, ok := v.(map[string]any)
				if !ok {
					continue
				}
				ts, tsOK := numericValue(point["timestamp"])
				val, valOK := numericValue(point["value"])
				if !tsOK || !valOK {
					continue
				}
				datapoints = append(datapoints, models.Datapoint{
					TimestampMillis: int64(ts),
					Value:           val,
				})
			}
			if len(datapoints) == 0 {
				continue
			}
			out = append(out, models.LabeledSeries{Labels: labels, Datapoints: datapoints})
		}
	}
	return out
}
