package clients

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// GrafanaClient talks to the Grafana HTTP API, including the /api/ds/query
// datasource proxy used for PromQL range queries.
type GrafanaClient struct {
	http    *HTTPClient
	hostURL string
	apiKey  string
}

func NewGrafanaClient(httpClient *HTTPClient, creds map[string]string) *GrafanaClient {
	return &GrafanaClient{
		http:    httpClient,
		hostURL: strings.TrimRight(creds["host"], "/"),
		apiKey:  creds["api_key"],
	}
}

// HostURL exposes the base URL for deep-link metadata.
func (c *GrafanaClient) HostURL() string { return c.hostURL }

func (c *GrafanaClient) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.apiKey,
		"Content-Type":  "application/json",
	}
}

// QueryRange proxies a range query to a datasource. fromMS/toMS are epoch
// milliseconds; intervalMS is the step.
func (c *GrafanaClient) QueryRange(ctx context.Context, datasourceUID, expr string, fromMS, toMS, intervalMS int64) (map[string]any, error) {
	body := map[string]any{
		"from": fmt.Sprintf("%d", fromMS),
		"to":   fmt.Sprintf("%d", toMS),
		"queries": []map[string]any{{
			"refId":      "A",
			"expr":       expr,
			"intervalMs": intervalMS,
			"datasource": map[string]string{"uid": datasourceUID},
			"format":     "time_series",
		}},
	}
	return c.http.DoJSON(ctx, http.MethodPost, c.hostURL+"/api/ds/query", c.headers(), body)
}

// FetchDashboard returns a dashboard definition (panels, templating) by UID.
func (c *GrafanaClient) FetchDashboard(ctx context.Context, uid string) (map[string]any, error) {
	return c.http.DoJSON(ctx, http.MethodGet, c.hostURL+"/api/dashboards/uid/"+uid, c.headers(), nil)
}

// TestConnection checks the API key against /api/org.
func (c *GrafanaClient) TestConnection(ctx context.Context) error {
	decoded, err := c.http.DoJSON(ctx, http.MethodGet, c.hostURL+"/api/org", c.headers(), nil)
	if err != nil {
		return err
	}
	if decoded["id"] == nil {
		return fmt.Errorf("grafana /api/org returned no org; check API key")
	}
	return nil
}
