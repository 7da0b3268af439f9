package clients

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/playbookd/sourcekit/internal/models"
)

const renderBaseURL = "https://api.render.com/v1"

// RenderClient talks to the Render REST API.
type RenderClient struct {
	http   *HTTPClient
	apiKey string
}

func NewRenderClient(http *HTTPClient, creds map[string]string) *RenderClient {
	return &RenderClient{http: http, apiKey: creds[string(models.KeyAPIKey)]}
}

func (c *RenderClient) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.apiKey,
		"Accept":        "application/json",
	}
}

// ListServices returns the account's services.
func (c *RenderClient) ListServices(ctx context.Context) ([]any, error) {
	status, body, err := c.http.Do(ctx, "GET", renderBaseURL+"/services", c.headers(), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("render returned status %d: %s", status, bodySnippet(body))
	}
	return decodeJSONList(body)
}

// GetService returns one service, including its ownerId which the logs
// endpoint requires.
func (c *RenderClient) GetService(ctx context.Context, serviceID string) (map[string]any, error) {
	return c.http.DoJSON(ctx, "GET", renderBaseURL+"/services/"+url.PathEscape(serviceID), c.headers(), nil)
}

// FetchLogs returns logs for one service within the time range. The logs
// endpoint requires the owning workspace id, so the service is looked up
// first.
func (c *RenderClient) FetchLogs(ctx context.Context, serviceID string, tr models.TimeRange, limit int) (map[string]any, error) {
	service, err := c.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	ownerID, _ := service["ownerId"].(string)
	if ownerID == "" {
		return nil, fmt.Errorf("render service %s has no ownerId", serviceID)
	}

	params := url.Values{}
	params.Set("ownerId", ownerID)
	params.Add("resource", serviceID)
	params.Set("startTime", time.UnixMilli(tr.StartMillis()).UTC().Format(time.RFC3339))
	params.Set("endTime", time.UnixMilli(tr.EndMillis()).UTC().Format(time.RFC3339))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return c.http.DoJSON(ctx, "GET", renderBaseURL+"/logs?"+params.Encode(), c.headers(), nil)
}

// ListDeploys returns the deploy history for one service.
func (c *RenderClient) ListDeploys(ctx context.Context, serviceID string) ([]any, error) {
	status, body, err := c.http.Do(ctx, "GET", renderBaseURL+"/services/"+url.PathEscape(serviceID)+"/deploys", c.headers(), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("render returned status %d: %s", status, bodySnippet(body))
	}
	return decodeJSONList(body)
}

// TestConnection lists services to verify the key.
func (c *RenderClient) TestConnection(ctx context.Context) error {
	_, err := c.ListServices(ctx)
	return err
}
