package clients

import (
	"context"
	"net/url"
	"strconv"

	"github.com/playbookd/sourcekit/internal/models"
)

const opsGenieBaseURL = "https://api.opsgenie.com"

// OpsGenieClient talks to the OpsGenie REST API with a GenieKey.
type OpsGenieClient struct {
	http   *HTTPClient
	apiKey string
}

func NewOpsGenieClient(http *HTTPClient, creds map[string]string) *OpsGenieClient {
	return &OpsGenieClient{http: http, apiKey: creds[string(models.KeyAPIKey)]}
}

func (c *OpsGenieClient) headers() map[string]string {
	return map[string]string{"Authorization": "GenieKey " + c.apiKey}
}

// ListAlerts pages through alerts matching an OpsGenie search query.
func (c *OpsGenieClient) ListAlerts(ctx context.Context, query string, limit, offset int) (map[string]any, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	if query != "" {
		params.Set("query", query)
	}
	return c.http.DoJSON(ctx, "GET", opsGenieBaseURL+"/v2/alerts?"+params.Encode(), c.headers(), nil)
}

// GetAlert returns one alert by identifier.
func (c *OpsGenieClient) GetAlert(ctx context.Context, alertID string) (map[string]any, error) {
	return c.http.DoJSON(ctx, "GET", opsGenieBaseURL+"/v2/alerts/"+url.PathEscape(alertID), c.headers(), nil)
}

// ListTeams returns the account's teams.
func (c *OpsGenieClient) ListTeams(ctx context.Context) (map[string]any, error) {
	return c.http.DoJSON(ctx, "GET", opsGenieBaseURL+"/v2/teams", c.headers(), nil)
}

// TestConnection verifies the key against the account endpoint.
func (c *OpsGenieClient) TestConnection(ctx context.Context) error {
	_, err := c.http.DoJSON(ctx, "GET", opsGenieBaseURL+"/v2/account", c.headers(), nil)
	return err
}
