package clients

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/playbookd/sourcekit/internal/models"
)

// Query syntaxes accepted by the Coralogix DataPrime endpoint.
const (
	CoralogixSyntaxLucene    = "QUERY_SYNTAX_LUCENE"
	CoralogixSyntaxDataPrime = "QUERY_SYNTAX_DATAPRIME"
)

// CoralogixClient talks to the Coralogix DataPrime, Prometheus-compatible
// metrics and dashboard management APIs.
type CoralogixClient struct {
	http     *HTTPClient
	apiKey   string
	endpoint string
}

func NewCoralogixClient(http *HTTPClient, creds map[string]string) *CoralogixClient {
	domain := creds[string(models.KeyAPIDomain)]
	domain = strings.TrimSuffix(strings.TrimSpace(domain), "/")
	if !strings.Contains(domain, "://") {
		domain = "https://api." + domain
	}
	return &CoralogixClient{
		http:     http,
		apiKey:   creds[string(models.KeyAPIKey)],
		endpoint: domain,
	}
}

func (c *CoralogixClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// QueryLogs runs a log query through the DataPrime endpoint and returns
// the raw NDJSON body. Each line is a JSON object; the flattener unwraps
// nested result envelopes.
func (c *CoralogixClient) QueryLogs(ctx context.Context, query, syntax string, tr models.TimeRange, limit int) ([]byte, error) {
	if syntax == "" {
		syntax = CoralogixSyntaxLucene
	}
	if limit <= 0 {
		limit = 100
	}
	payload := map[string]any{
		"query": query,
		"metadata": map[string]any{
			"tier":          "TIER_FREQUENT_SEARCH",
			"syntax":        syntax,
			"startDate":     time.UnixMilli(tr.StartMillis()).UTC().Format(time.RFC3339),
			"endDate":       time.UnixMilli(tr.EndMillis()).UTC().Format(time.RFC3339),
			"defaultSource": "logs",
			"limit":         limit,
		},
	}
	raw, err := encodeJSON(c.http.source, payload)
	if err != nil {
		return nil, err
	}

	status, body, err := c.http.Do(ctx, "POST", c.endpoint+"/api/v1/dataprime/query", c.headers(), raw)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("coralogix returned status %d: %s", status, bodySnippet(body))
	}
	return body, nil
}

// QueryMetricsRange runs a PromQL query against the Prometheus-compatible
// metrics API. The metrics API lives on the ng-api-http host of the same
// region.
func (c *CoralogixClient) QueryMetricsRange(ctx context.Context, promQL string, tr models.TimeRange, stepSeconds int64) (map[string]any, error) {
	metricsEndpoint := strings.Replace(c.endpoint, "api.", "ng-api-http.", 1)

	params := url.Values{}
	params.Set("query", promQL)
	params.Set("start", strconv.FormatInt(tr.GEq, 10))
	params.Set("end", strconv.FormatInt(tr.Lt, 10))
	params.Set("step", strconv.FormatInt(stepSeconds, 10))

	status, body, err := c.http.Do(ctx, "GET", metricsEndpoint+"/metrics/api/v1/query_range?"+params.Encode(), c.headers(), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("coralogix metrics returned status %d: %s", status, bodySnippet(body))
	}
	return decodeJSONObject(c.http.source, body)
}

// FetchDashboards lists the dashboard catalog.
func (c *CoralogixClient) FetchDashboards(ctx context.Context) (map[string]any, error) {
	return c.http.DoJSON(ctx, "GET", c.endpoint+"/mgmt/openapi/v1/dashboards/catalog", c.headers(), nil)
}

// FetchDashboardDetail returns the full definition of one dashboard,
// widgets included.
func (c *CoralogixClient) FetchDashboardDetail(ctx context.Context, dashboardID string) (map[string]any, error) {
	return c.http.DoJSON(ctx, "GET", c.endpoint+"/mgmt/openapi/v1/dashboards/dashboards/"+url.PathEscape(dashboardID), c.headers(), nil)
}

// TestConnection issues a minimal DataPrime query to verify the key and
// region.
func (c *CoralogixClient) TestConnection(ctx context.Context) error {
	now := time.Now()
	tr := models.LastHours(now, 1)
	_, err := c.QueryLogs(ctx, "*", CoralogixSyntaxLucene, tr, 1)
	return err
}
