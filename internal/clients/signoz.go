package clients

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/playbookd/sourcekit/internal/models"
)

// SignozClient talks to a Signoz instance through its query range and
// dashboard APIs.
type SignozClient struct {
	http    *HTTPClient
	hostURL string
	apiKey  string
}

func NewSignozClient(http *HTTPClient, creds map[string]string) *SignozClient {
	return &SignozClient{
		http:    http,
		hostURL: strings.TrimSuffix(creds[string(models.KeyHost)], "/"),
		apiKey:  creds[string(models.KeyAPIKey)],
	}
}

func (c *SignozClient) headers() map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if c.apiKey != "" {
		h["SIGNOZ-API-KEY"] = c.apiKey
	}
	return h
}

// HostURL returns the configured base URL, used for deep links.
func (c *SignozClient) HostURL() string { return c.hostURL }

// QueryRange posts a composite query to the v4 query range endpoint.
// The payload carries start/end in milliseconds and a compositeQuery
// built by the caller (builder queries or clickhouse_sql).
func (c *SignozClient) QueryRange(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return c.http.DoJSON(ctx, "POST", c.hostURL+"/api/v4/query_range", c.headers(), payload)
}

// QueryClickhouse runs a raw ClickHouse SQL query through the query range
// API with a clickhouse_sql composite query.
func (c *SignozClient) QueryClickhouse(ctx context.Context, query string, tr models.TimeRange, stepSeconds int64, panelType string) (map[string]any, error) {
	if panelType == "" {
		panelType = "table"
	}
	payload := map[string]any{
		"start": tr.StartMillis(),
		"end":   tr.EndMillis(),
		"step":  stepSeconds,
		"compositeQuery": map[string]any{
			"queryType": "clickhouse_sql",
			"panelType": panelType,
			"chQueries": map[string]any{
				"A": map[string]any{
					"query":    query,
					"name":     "A",
					"disabled": false,
				},
			},
		},
	}
	return c.QueryRange(ctx, payload)
}

// QueryBuilder runs builder queries, the panel query format Signoz
// dashboards store.
func (c *SignozClient) QueryBuilder(ctx context.Context, builderQueries map[string]any, tr models.TimeRange, stepSeconds int64, panelType string) (map[string]any, error) {
	if panelType == "" {
		panelType = "graph"
	}
	payload := map[string]any{
		"start":     tr.StartMillis(),
		"end":       tr.EndMillis(),
		"step":      stepSeconds,
		"variables": map[string]any{},
		"compositeQuery": map[string]any{
			"queryType":      "builder",
			"panelType":      panelType,
			"builderQueries": builderQueries,
		},
	}
	return c.QueryRange(ctx, payload)
}

// FetchDashboards lists dashboards.
func (c *SignozClient) FetchDashboards(ctx context.Context) (map[string]any, error) {
	return c.http.DoJSON(ctx, "GET", c.hostURL+"/api/v1/dashboards", c.headers(), nil)
}

// FetchDashboardDetail returns one dashboard with its panel definitions.
func (c *SignozClient) FetchDashboardDetail(ctx context.Context, dashboardID string) (map[string]any, error) {
	return c.http.DoJSON(ctx, "GET", c.hostURL+"/api/v1/dashboards/"+url.PathEscape(dashboardID), c.headers(), nil)
}

// TestConnection checks the health endpoint.
func (c *SignozClient) TestConnection(ctx context.Context) error {
	status, body, err := c.http.Do(ctx, "GET", c.hostURL+"/api/v1/health", c.headers(), nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("signoz health check returned status %d: %s", status, bodySnippet(body))
	}
	return nil
}
