package sources

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/playbookd/sourcekit/internal/assets"
	"github.com/playbookd/sourcekit/internal/clients"
	"github.com/playbookd/sourcekit/internal/flatten"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/internal/querykit"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const (
	TaskNRQLMetric            = "nrql_metric_execution"
	TaskFetchDashboardWidgets = "fetch_dashboard_widgets"
)

var nrqlAliasRe = regexp.MustCompile(`(?i)AS\s+'(.*?)'|AS\s+(\w+)`)

// nrqlResultAlias pulls the AS alias out of an NRQL expression. Without
// one, aggregate values land under "result".
func nrqlResultAlias(nrql string) string {
	if m := nrqlAliasRe.FindStringSubmatch(nrql); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	return "result"
}

// NewRelicManager executes NRQL metric and dashboard widget tasks through
// the NerdGraph API.
type NewRelicManager struct {
	deps Deps
	http *clients.HTTPClient
	log  logger.Logger
}

func NewNewRelicManager(deps Deps) *NewRelicManager {
	return &NewRelicManager{
		deps: deps,
		http: deps.httpClient(models.SourceNewRelic),
		log:  deps.Logger.With("source", models.SourceNewRelic),
	}
}

func (m *NewRelicManager) Source() models.Source { return models.SourceNewRelic }

func (m *NewRelicManager) TaskTypes() []string {
	return []string{TaskNRQLMetric, TaskFetchDashboardWidgets}
}

func (m *NewRelicManager) client(connector *models.Connector) (*clients.NewRelicClient, error) {
	creds, err := connector.RequireCredentials(models.KeyAPIKey, models.KeyAccountID)
	if err != nil {
		return nil, err
	}
	return clients.NewNewRelicClient(m.http, creds), nil
}

func (m *NewRelicManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	client, err := m.client(connector)
	if err != nil {
		return err
	}
	return client.TestConnection(ctx)
}

func (m *NewRelicManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	client, err := m.client(connector)
	if err != nil {
		return nil, err
	}
	switch task.Type {
	case TaskNRQLMetric:
		return m.executeNRQLMetric(ctx, tr, task, client)
	case TaskFetchDashboardWidgets:
		return m.executeDashboardWidgets(ctx, tr, task, connector, client)
	default:
		return nil, fmt.Errorf("newrelic: unknown task type %q", task.Type)
	}
}

func (m *NewRelicManager) executeNRQLMetric(ctx context.Context, tr models.TimeRange, task *models.Task, client *clients.NewRelicClient) ([]models.TaskResult, error) {
	var params models.NRQLMetricTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.NRQLExpression) == "" {
		return nil, fmt.Errorf("newrelic: nrql_expression is required")
	}

	opts := querykit.InjectOptions{HasTimeseries: true, Logger: m.log}
	nrql := querykit.NRQL.InjectTimeWindow(params.NRQLExpression, tr, opts)
	alias := nrqlResultAlias(nrql)

	payload, err := client.ExecuteNRQL(ctx, nrql)
	if err != nil {
		return nil, err
	}

	flattenOpts := flatten.Options{
		AggregateAlias: alias,
		Hints:          querykit.NRQL.AggregateHints,
		Unit:           params.Unit,
		BaseLabels:     []models.Label{{Name: "offset_seconds", Value: "0"}},
		Logger:         m.log,
	}
	series := flatten.Timeseries(payload, flattenOpts)

	// Offsets re-run the same query against earlier windows so callers
	// can compare against previous days or weeks.
	for _, offset := range params.TimeseriesOffsets {
		shifted := models.TimeRange{GEq: tr.GEq - offset, Lt: tr.Lt - offset}
		offsetNRQL := querykit.NRQL.InjectTimeWindow(params.NRQLExpression, shifted, opts)

		offsetPayload, err := client.ExecuteNRQL(ctx, offsetNRQL)
		if err != nil {
			m.log.Warn("offset query failed, skipping",
				"offset_seconds", offset, "error", err)
			continue
		}
		offsetOpts := flattenOpts
		offsetOpts.BaseLabels = []models.Label{{Name: "offset_seconds", Value: strconv.FormatInt(offset, 10)}}
		series = append(series, flatten.Timeseries(offsetPayload, offsetOpts)...)
	}

	result := models.NewTimeseriesResult(models.SourceNewRelic, params.MetricName, nrql, series).
		WithMetadata(map[string]any{
			"account_id": client.AccountID(),
			"nrql":       nrql,
		})
	return []models.TaskResult{result}, nil
}

// dashboardWidget is one widget with its NRQL queries, collected across
// a dashboard's pages.
type dashboardWidget struct {
	title string
	nrqls []string
}

func (m *NewRelicManager) executeDashboardWidgets(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector, client *clients.NewRelicClient) ([]models.TaskResult, error) {
	var params models.NewRelicDashboardWidgetsTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.DashboardName) == "" {
		return nil, fmt.Errorf("newrelic: dashboard_name is required")
	}

	widgets, err := m.findDashboardWidgets(ctx, connector, client, params)
	if err != nil {
		return []models.TaskResult{
			models.NewTextResult(models.SourceNewRelic, fmt.Sprintf("Error finding dashboard/widgets: %v", err)),
		}, nil
	}

	var results []models.TaskResult
	for _, widget := range widgets {
		series := m.widgetSeries(ctx, tr, client, widget)
		if len(series) == 0 {
			m.log.Warn("no timeseries data for widget", "widget", widget.title)
			continue
		}
		expr := ""
		if len(widget.nrqls) > 0 {
			expr = m.prepareWidgetNRQL(widget.nrqls[0], tr)
		}
		results = append(results, models.NewTimeseriesResult(models.SourceNewRelic, widget.title, expr, series))
	}

	if len(results) == 0 {
		msg := fmt.Sprintf("No data found for the specified widgets in dashboard %q. Check widget configurations and time range.", params.DashboardName)
		return []models.TaskResult{models.NewTextResult(models.SourceNewRelic, msg)}, nil
	}
	return results, nil
}

// widgetSeries runs every unique NRQL query of one widget. Query failures
// are logged and skipped so one bad query does not sink the widget.
func (m *NewRelicManager) widgetSeries(ctx context.Context, tr models.TimeRange, client *clients.NewRelicClient, widget dashboardWidget) []models.LabeledSeries {
	seen := make(map[string]bool)
	var series []models.LabeledSeries
	idx := 0
	for _, nrql := range widget.nrqls {
		if nrql == "" || seen[nrql] {
			continue
		}
		seen[nrql] = true

		prepared := m.prepareWidgetNRQL(nrql, tr)
		payload, err := client.ExecuteNRQL(ctx, prepared)
		if err != nil {
			m.log.Warn("widget query failed, skipping",
				"widget", widget.title, "query_index", idx, "error", err)
			idx++
			continue
		}
		opts := flatten.Options{
			Hints:      querykit.NRQL.AggregateHints,
			BaseLabels: []models.Label{{Name: "query_index", Value: strconv.Itoa(idx)}},
			Logger:     m.log,
		}
		series = append(series, flatten.Timeseries(payload, opts)...)
		idx++
	}
	return series
}

var limitMaxTimeseriesRe = regexp.MustCompile(`(?i)limit max timeseries`)

// prepareWidgetNRQL makes a stored widget query executable for the task's
// window. LIMIT MAX TIMESERIES is a dashboard-only construct the query
// API rejects.
func (m *NewRelicManager) prepareWidgetNRQL(nrql string, tr models.TimeRange) string {
	nrql = limitMaxTimeseriesRe.ReplaceAllString(nrql, "TIMESERIES 5 MINUTE")
	hasTimeseries := querykit.HasTimeseriesClause(nrql)
	return querykit.NRQL.InjectTimeWindow(nrql, tr, querykit.InjectOptions{
		HasTimeseries: hasTimeseries,
		Logger:        m.log,
	})
}

// findDashboardWidgets resolves the dashboard by name, then collects the
// widgets matching the page and title filters. Dashboard catalogs and
// details are served through the asset cache.
func (m *NewRelicManager) findDashboardWidgets(ctx context.Context, connector *models.Connector, client *clients.NewRelicClient, params models.NewRelicDashboardWidgetsTask) ([]dashboardWidget, error) {
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

	guids := matchDashboardGUIDs(catalog, params.DashboardName, params.PageName)
	if len(guids) == 0 {
		return nil, fmt.Errorf("dashboard with name %q not found", params.DashboardName)
	}

	var widgets []dashboardWidget
	for _, guid := range guids {
		detailKey := assets.Key{
			ConnectorType: connector.Type,
			ConnectorID:   connector.ID,
			AssetType:     "dashboard",
			AssetID:       guid,
		}
		detail, err := m.deps.Assets.Get(ctx, detailKey, func(ctx context.Context) (map[string]any, error) {
			return client.FetchDashboardDetail(ctx, guid)
		})
		if err != nil {
			m.log.Warn("failed to fetch dashboard detail, skipping", "guid", guid, "error", err)
			continue
		}
		widgets = append(widgets, collectWidgets(detail, params.PageName, params.WidgetNames)...)
	}
	return dedupeWidgets(widgets), nil
}

// matchDashboardGUIDs applies the dashboard name match against the entity
// catalog. Multi-page dashboards surface each page as "name / page", so a
// bare name also matches its page entities.
func matchDashboardGUIDs(catalog map[string]any, dashboardName, pageName string) []string {
	entities, _ := digAny(catalog, "data", "actor", "entitySearch", "results", "entities").([]any)
	want := strings.ToLower(dashboardName)

	var guids []string
	seen := make(map[string]bool)
	for _, e := range entities {
		entity, ok := e.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entity["name"].(string)
		guid, _ := entity["guid"].(string)
		if guid == "" || seen[guid] {
			continue
		}
		current := strings.ToLower(name)

		match := false
		if pageName != "" {
			match = current == want+" / "+strings.ToLower(pageName)
		} else {
			match = current == want || strings.HasPrefix(current, want+" / ")
		}
		if match {
			seen[guid] = true
			guids = append(guids, guid)
		}
	}
	sort.Strings(guids)
	return guids
}

// collectWidgets walks a dashboard entity's pages and pulls NRQL queries
// out of widget rawConfiguration blocks.
func collectWidgets(detail map[string]any, pageName string, widgetNames []string) []dashboardWidget {
	pages, _ := detail["pages"].([]any)
	var out []dashboardWidget
	for _, p := range pages {
		page, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if pageName != "" {
			name, _ := page["name"].(string)
			if !strings.EqualFold(name, pageName) {
				continue
			}
		}
		pageWidgets, _ := page["widgets"].([]any)
		for _, w := range pageWidgets {
			widget, ok := w.(map[string]any)
			if !ok {
				continue
			}
			title, _ := widget["title"].(string)
			if title == "" {
				title = "Untitled Widget"
			}
			if len(widgetNames) > 0 && !titleMatches(title, widgetNames) {
				continue
			}
			nrqls := widgetNRQLs(widget)
			if len(nrqls) == 0 {
				continue
			}
			out = append(out, dashboardWidget{title: title, nrqls: nrqls})
		}
	}
	return out
}

func widgetNRQLs(widget map[string]any) []string {
	raw, _ := widget["rawConfiguration"].(map[string]any)
	queries, _ := raw["nrqlQueries"].([]any)
	var out []string
	for _, q := range queries {
		query, ok := q.(map[string]any)
		if !ok {
			continue
		}
		if nrql, _ := query["query"].(string); nrql != "" {
			out = append(out, nrql)
		}
	}
	return out
}

func titleMatches(title string, wanted []string) bool {
	lower := strings.ToLower(title)
	for _, w := range wanted {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// dedupeWidgets drops widgets that carry the same title and query set,
// which happens when several catalog entities resolve to one dashboard.
func dedupeWidgets(widgets []dashboardWidget) []dashboardWidget {
	seen := make(map[string]bool)
	var out []dashboardWidget
	for _, w := range widgets {
		sorted := append([]string(nil), w.nrqls...)
		sort.Strings(sorted)
		key := w.title + "\x00" + strings.Join(sorted, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, w)
	}
	return out
}

// digAny walks nested JSON objects, returning nil when any hop is
// missing.
func digAny(m map[string]any, path ...string) any {
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
