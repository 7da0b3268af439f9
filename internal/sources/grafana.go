package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/playbookd/sourcekit/internal/assets"
	"github.com/playbookd/sourcekit/internal/clients"
	"github.com/playbookd/sourcekit/internal/flatten"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/internal/querykit"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const (
	TaskGrafanaDatasourceQuery = "datasource_query_execution"
	TaskGrafanaDashboardPanels = "execute_all_dashboard_panels"
)

// GrafanaManager executes datasource proxy queries and dashboard panel
// fan-outs.
type GrafanaManager struct {
	deps Deps
	http *clients.HTTPClient
	log  logger.Logger
}

func NewGrafanaManager(deps Deps) *GrafanaManager {
	return &GrafanaManager{
		deps: deps,
		http: deps.httpClient(models.SourceGrafana),
		log:  deps.Logger.With("source", models.SourceGrafana),
	}
}

func (m *GrafanaManager) Source() models.Source { return models.SourceGrafana }

func (m *GrafanaManager) TaskTypes() []string {
	return []string{TaskGrafanaDatasourceQuery, TaskGrafanaDashboardPanels}
}

func (m *GrafanaManager) client(connector *models.Connector) (*clients.GrafanaClient, error) {
	creds, err := connector.RequireCredentials(models.KeyHost, models.KeyAPIKey)
	if err != nil {
		return nil, err
	}
	return clients.NewGrafanaClient(m.http, creds), nil
}

func (m *GrafanaManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	client, err := m.client(connector)
	if err != nil {
		return err
	}
	return client.TestConnection(ctx)
}

func (m *GrafanaManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	client, err := m.client(connector)
	if err != nil {
		return nil, err
	}
	switch task.Type {
	case TaskGrafanaDatasourceQuery:
		return m.executeDatasourceQuery(ctx, tr, task, client)
	case TaskGrafanaDashboardPanels:
		return m.executeDashboardPanels(ctx, tr, task, connector, client)
	default:
		return nil, fmt.Errorf("grafana: unknown task type %q", task.Type)
	}
}

func (m *GrafanaManager) executeDatasourceQuery(ctx context.Context, tr models.TimeRange, task *models.Task, client *clients.GrafanaClient) ([]models.TaskResult, error) {
	var params models.GrafanaDatasourceQueryTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if params.DatasourceUID == "" || strings.TrimSpace(params.Expr) == "" {
		return nil, fmt.Errorf("grafana: datasource_uid and expr are required")
	}
	interval := params.IntervalSeconds
	if interval <= 0 {
		interval = querykit.BucketSeconds(tr.SpanSeconds())
	}

	payload, err := client.QueryRange(ctx, params.DatasourceUID, params.Expr, tr.StartMillis(), tr.EndMillis(), interval*1000)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"host_url":       client.HostURL(),
		"datasource_uid": params.DatasourceUID,
		"query":          params.Expr,
		"from":           tr.StartMillis(),
		"to":             tr.EndMillis(),
	}

	series := flatten.DataFrames(payload)
	if len(series) == 0 {
		series = flatten.PromMatrix(payload)
	}
	if len(series) == 0 {
		msg := fmt.Sprintf("No data returned from Grafana for query: %s", params.Expr)
		return []models.TaskResult{
			models.NewTextResult(models.SourceGrafana, msg).WithMetadata(metadata),
		}, nil
	}

	result := models.NewTimeseriesResult(models.SourceGrafana, params.Expr, params.Expr, series).
		WithMetadata(metadata)
	return []models.TaskResult{result}, nil
}

func (m *GrafanaManager) executeDashboardPanels(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector, client *clients.GrafanaClient) ([]models.TaskResult, error) {
	var params models.GrafanaDashboardPanelsTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if params.DashboardUID == "" {
		return nil, fmt.Errorf("grafana: dashboard_uid is required")
	}

	key := assets.Key{
		ConnectorType: connector.Type,
		ConnectorID:   connector.ID,
		AssetType:     "dashboard",
		AssetID:       params.DashboardUID,
	}
	payload, err := m.deps.Assets.Get(ctx, key, func(ctx context.Context) (map[string]any, error) {
		return client.FetchDashboard(ctx, params.DashboardUID)
	})
	if err != nil {
		return nil, err
	}
	dashboard, ok := payload["dashboard"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("grafana: dashboard %q not found", params.DashboardUID)
	}

	vars := templateVariableValues(dashboard)
	for name, v := range params.TemplateVariables {
		vars[name] = v
	}

	interval := params.IntervalSeconds
	if interval <= 0 {
		interval = querykit.BucketSeconds(tr.SpanSeconds())
	}

	panels := dashboardPanels(dashboard, params.PanelTitles)
	if len(panels) == 0 {
		msg := fmt.Sprintf("No matching panels found in dashboard %q", params.DashboardUID)
		return []models.TaskResult{models.NewTextResult(models.SourceGrafana, msg)}, nil
	}

	var results []models.TaskResult
	for _, panel := range panels {
		result, ok := m.queryPanel(ctx, tr, client, panel, vars, interval)
		if ok {
			results = append(results, result)
		}
	}
	if len(results) == 0 {
		msg := fmt.Sprintf("No data returned for any panel in dashboard %q", params.DashboardUID)
		return []models.TaskResult{models.NewTextResult(models.SourceGrafana, msg)}, nil
	}
	return results, nil
}

// queryPanel runs every target of one panel. A failed panel degrades to a
// text result so the remaining panels still report.
func (m *GrafanaManager) queryPanel(ctx context.Context, tr models.TimeRange, client *clients.GrafanaClient, panel grafanaPanel, vars map[string]any, intervalSeconds int64) (models.TaskResult, bool) {
	var series []models.LabeledSeries
	var firstErr error
	for _, expr := range panel.exprs {
		resolved := querykit.ResolveTemplateVariables(expr, vars)
		payload, err := client.QueryRange(ctx, panel.datasourceUID, resolved, tr.StartMillis(), tr.EndMillis(), intervalSeconds*1000)
		if err != nil {
			m.log.Warn("panel query failed", "panel", panel.title, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		panelSeries := flatten.DataFrames(payload)
		if len(panelSeries) == 0 {
			panelSeries = flatten.PromMatrix(payload)
		}
		series = append(series, panelSeries...)
	}

	if len(series) == 0 {
		if firstErr != nil {
			msg := fmt.Sprintf("Panel %q failed: %v", panel.title, firstErr)
			return models.NewTextResult(models.SourceGrafana, msg), true
		}
		return models.TaskResult{}, false
	}
	result := models.NewTimeseriesResult(models.SourceGrafana, panel.title, strings.Join(panel.exprs, "; "), series).
		WithMetadata(map[string]any{
			"host_url":  client.HostURL(),
			"dashboard": panel.dashboardUID,
			"panel":     panel.title,
		})
	return result, true
}

type grafanaPanel struct {
	title         string
	datasourceUID string
	dashboardUID  string
	exprs         []string
}

// templateVariableValues pulls the current value of each template variable
// out of the dashboard's templating list.
func templateVariableValues(dashboard map[string]any) map[string]any {
	out := make(map[string]any)
	templating, _ := dashboard["templating"].(map[string]any)
	list, _ := templating["list"].([]any)
	for _, v := range list {
		variable, ok := v.(map[string]any)
		if !ok {
			continue
		}
		name, _ := variable["name"].(string)
		if name == "" {
			continue
		}
		if current, ok := variable["current"].(map[string]any); ok {
			out[name] = current["value"]
		}
	}
	return out
}

// dashboardPanels flattens panels (rows included) and applies the title
// filter.
func dashboardPanels(dashboard map[string]any, titles []string) []grafanaPanel {
	uid, _ := dashboard["uid"].(string)
	raw, _ := dashboard["panels"].([]any)

	var flat []map[string]any
	var walk func(panels []any)
	walk = func(panels []any) {
		for _, p := range panels {
			panel, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if nested, ok := panel["panels"].([]any); ok {
				walk(nested)
				continue
			}
			flat = append(flat, panel)
		}
	}
	walk(raw)

	var out []grafanaPanel
	for _, panel := range flat {
		title, _ := panel["title"].(string)
		if len(titles) > 0 && !titleMatches(title, titles) {
			continue
		}
		targets, _ := panel["targets"].([]any)
		var exprs []string
		datasourceUID := panelDatasourceUID(panel)
		for _, t := range targets {
			target, ok := t.(map[string]any)
			if !ok {
				continue
			}
			if expr, _ := target["expr"].(string); expr != "" {
				exprs = append(exprs, expr)
				if uid := panelDatasourceUID(target); uid != "" {
					datasourceUID = uid
				}
			}
		}
		if len(exprs) == 0 {
			continue
		}
		out = append(out, grafanaPanel{
			title:         title,
			datasourceUID: datasourceUID,
			dashboardUID:  uid,
			exprs:         exprs,
		})
	}
	return out
}

func panelDatasourceUID(obj map[string]any) string {
	switch ds := obj["datasource"].(type) {
	case map[string]any:
		uid, _ := ds["uid"].(string)
		return uid
	case string:
		return ds
	}
	return ""
}
