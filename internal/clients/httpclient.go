// Package clients holds the thin per-vendor API processors. Each one wraps
// a shared HTTP client that records metrics and trips a circuit breaker on
// consecutive upstream failures. Nothing in this layer retries.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/playbookd/sourcekit/internal/metrics"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const maxResponseBytes = 32 << 20 // vendors stream large dashboard payloads

// HTTPClient is the shared outbound client for vendor APIs.
type HTTPClient struct {
	source  models.Source
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  logger.Logger
}

// NewHTTPClient builds a client for one vendor. breakerFailures consecutive
// failures open the breaker for a cool-down before calls are attempted
// again.
func NewHTTPClient(source models.Source, timeout time.Duration, breakerFailures int, log logger.Logger) *HTTPClient {
	if breakerFailures <= 0 {
		breakerFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    string(source),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(breakerFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("upstream breaker state change", "source", name, "from", from.String(), "to", to.String())
		},
	})
	return &HTTPClient{
		source:  source,
		client:  &http.Client{Timeout: timeout},
		breaker: cb,
		logger:  log,
	}
}

// Do issues one request and returns the status code and body. Non-2xx
// statuses are returned to the caller, not turned into errors; executors
// decide what a vendor rejection means.
func (c *HTTPClient) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, []byte, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if body != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		return &httpResult{status: resp.StatusCode, body: payload}, nil
	})

	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordUpstreamRequest(string(c.source), "error", elapsed)
		return 0, nil, fmt.Errorf("%s request failed: %w", c.source, err)
	}

	res := result.(*httpResult)
	metrics.RecordUpstreamRequest(string(c.source), strconv.Itoa(res.status), elapsed)
	return res.status, res.body, nil
}

type httpResult struct {
	status int
	body   []byte
}

// DoJSON issues a request with a JSON body and decodes a JSON object
// response. A non-2xx status is an upstream error carrying a body snippet.
func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, headers map[string]string, reqBody any) (map[string]any, error) {
	var raw []byte
	if reqBody != nil {
		var err error
		raw, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", c.source, err)
		}
	}

	status, body, err := c.Do(ctx, method, url, headers, raw)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%s returned status %d: %s", c.source, status, bodySnippet(body))
	}

	var decoded map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("failed to parse %s response: %w", c.source, err)
		}
	}
	return decoded, nil
}

func encodeJSON(source models.Source, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", source, err)
	}
	return raw, nil
}

func decodeJSONObject(source models.Source, body []byte) (map[string]any, error) {
	var decoded map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("failed to parse %s response: %w", source, err)
		}
	}
	return decoded, nil
}

func decodeJSONList(body []byte) ([]any, error) {
	var decoded []any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("failed to parse list response: %w", err)
		}
	}
	return decoded, nil
}

func bodySnippet(body []byte) string {
	const limit = 512
	if len(body) > limit {
		body = body[:limit]
	}
	return string(body)
}
