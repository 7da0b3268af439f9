package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/playbookd/sourcekit/internal/models"
)

// PostHogClient talks to the PostHog project API with a personal API key.
type PostHogClient struct {
	http      *HTTPClient
	hostURL   string
	apiKey    string
	projectID string
}

func NewPostHogClient(http *HTTPClient, creds map[string]string) *PostHogClient {
	host := strings.TrimSuffix(creds[string(models.KeyHost)], "/")
	if host == "" {
		host = "https://us.posthog.com"
	}
	return &PostHogClient{
		http:      http,
		hostURL:   host,
		apiKey:    creds[string(models.KeyAPIKey)],
		projectID: creds[string(models.KeyProjectID)],
	}
}

func (c *PostHogClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// ExecuteHogQL runs a HogQL query through the project query endpoint and
// returns the decoded response, which carries parallel "columns" and
// "results" arrays.
func (c *PostHogClient) ExecuteHogQL(ctx context.Context, query string) (map[string]any, error) {
	payload := map[string]any{
		"query": map[string]any{
			"kind":  "HogQLQuery",
			"query": query,
		},
	}
	url := fmt.Sprintf("%s/api/projects/%s/query/", c.hostURL, c.projectID)
	return c.http.DoJSON(ctx, "POST", url, c.headers(), payload)
}

// FetchEvents lists raw events for the project, newest first.
func (c *PostHogClient) FetchEvents(ctx context.Context, eventName string, limit int) (map[string]any, error) {
	if limit <= 0 {
		limit = 100
	}
	url := fmt.Sprintf("%s/api/projects/%s/events/?limit=%d", c.hostURL, c.projectID, limit)
	if eventName != "" {
		url += "&event=" + eventName
	}
	return c.http.DoJSON(ctx, "GET", url, c.headers(), nil)
}

// TestConnection verifies the key against the current-user endpoint.
func (c *PostHogClient) TestConnection(ctx context.Context) error {
	_, err := c.http.DoJSON(ctx, "GET", c.hostURL+"/api/users/@me/", c.headers(), nil)
	return err
}
