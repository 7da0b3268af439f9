package clients

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/playbookd/sourcekit/internal/models"
)

// ClickHouseClient runs queries over the ClickHouse HTTP interface.
// Responses are requested in FORMAT JSON, which carries meta, data and
// rows fields.
type ClickHouseClient struct {
	http     *HTTPClient
	baseURL  string
	user     string
	password string
}

func NewClickHouseClient(http *HTTPClient, creds map[string]string) *ClickHouseClient {
	scheme := creds[string(models.KeyInterface)]
	if scheme != "https" {
		scheme = "http"
	}
	host := creds[string(models.KeyHost)]
	port := creds[string(models.KeyPort)]
	if port == "" {
		port = "8123"
	}
	return &ClickHouseClient{
		http:     http,
		baseURL:  fmt.Sprintf("%s://%s:%s", scheme, host, port),
		user:     creds[string(models.KeyUser)],
		password: creds[string(models.KeyPassword)],
	}
}

func (c *ClickHouseClient) headers() map[string]string {
	h := map[string]string{"Content-Type": "text/plain"}
	if c.user != "" {
		h["X-ClickHouse-User"] = c.user
	}
	if c.password != "" {
		h["X-ClickHouse-Key"] = c.password
	}
	return h
}

// Query runs one SQL statement against a database and returns the decoded
// JSON result. A FORMAT clause is appended unless the query already has
// one.
func (c *ClickHouseClient) Query(ctx context.Context, database, query string) (map[string]any, error) {
	params := url.Values{}
	if database != "" {
		params.Set("database", database)
	}

	sql := strings.TrimSpace(query)
	if !strings.Contains(strings.ToUpper(sql), "FORMAT ") {
		sql += " FORMAT JSON"
	}

	endpoint := c.baseURL + "/"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	status, body, err := c.http.Do(ctx, "POST", endpoint, c.headers(), []byte(sql))
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("clickhouse returned status %d: %s", status, bodySnippet(body))
	}
	return decodeJSONObject(c.http.source, body)
}

// TestConnection runs a trivial query to verify host and credentials.
func (c *ClickHouseClient) TestConnection(ctx context.Context) error {
	_, err := c.Query(ctx, "", "SELECT 1")
	return err
}
