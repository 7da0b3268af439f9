package clients

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// NewRelicClient talks to the NerdGraph GraphQL API.
type NewRelicClient struct {
	http      *HTTPClient
	apiKey    string
	accountID string
	apiDomain string
}

func NewNewRelicClient(httpClient *HTTPClient, creds map[string]string) *NewRelicClient {
	domain := creds["api_domain"]
	if domain == "" {
		domain = "api.newrelic.com"
	}
	return &NewRelicClient{
		http:      httpClient,
		apiKey:    creds["api_key"],
		accountID: creds["account_id"],
		apiDomain: domain,
	}
}

// AccountID exposes the account for deep-link metadata.
func (c *NewRelicClient) AccountID() string { return c.accountID }

func (c *NewRelicClient) endpoint() string {
	if strings.Contains(c.apiDomain, "://") {
		return strings.TrimSuffix(c.apiDomain, "/") + "/graphql"
	}
	return fmt.Sprintf("https://%s/graphql", c.apiDomain)
}

func (c *NewRelicClient) headers() map[string]string {
	return map[string]string{
		"Api-Key":      c.apiKey,
		"Content-Type": "application/json",
	}
}

// ExecuteNRQL runs one NRQL query and returns the nrql result object
// (results, previousResults, rawResponse, metadata).
func (c *NewRelicClient) ExecuteNRQL(ctx context.Context, nrql string) (map[string]any, error) {
	// escape for GraphQL string embedding
	escaped := strings.ReplaceAll(strings.ReplaceAll(nrql, `\`, `\\`), `"`, `\"`)
	gql := fmt.Sprintf(`{
	  actor {
	    account(id: %s) {
	      nrql(query: "%s") {
	        metadata { eventTypes facets messages }
	        nrql
	        otherResult
	        previousResults
	        rawResponse
	        results
	        totalResult
	      }
	    }
	  }
	}`, c.accountID, escaped)

	decoded, err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint(), c.headers(), map[string]string{"query": gql})
	if err != nil {
		return nil, err
	}
	return nrqlPayload(decoded), nil
}

// TestConnection verifies the account is reachable with the configured key.
func (c *NewRelicClient) TestConnection(ctx context.Context) error {
	gql := fmt.Sprintf(`{ actor { account(id: %s) { name } } }`, c.accountID)
	decoded, err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint(), c.headers(), map[string]string{"query": gql})
	if err != nil {
		return err
	}
	if dig(decoded, "data", "actor", "account") == nil {
		return fmt.Errorf("newrelic account %s not reachable with configured key", c.accountID)
	}
	return nil
}

// FetchDashboards returns dashboard entities for the account via entity
// search, including page/widget definitions.
func (c *NewRelicClient) FetchDashboards(ctx context.Context) (map[string]any, error) {
	gql := `{
	  actor {
	    entitySearch(query: "type = 'DASHBOARD'") {
	      results {
	        entities {
	          ... on DashboardEntityOutline { guid name accountId dashboardParentGuid }
	        }
	      }
	    }
	  }
	}`
	decoded, err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint(), c.headers(), map[string]string{"query": gql})
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// FetchDashboardDetail resolves one dashboard entity with its pages and
// widget NRQL queries.
func (c *NewRelicClient) FetchDashboardDetail(ctx context.Context, guid string) (map[string]any, error) {
	gql := fmt.Sprintf(`{
	  actor {
	    entity(guid: "%s") {
	      ... on DashboardEntity {
	        guid name
	        pages {
	          guid name
	          widgets {
	            title
	            rawConfiguration
	          }
	        }
	      }
	    }
	  }
	}`, guid)
	decoded, err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint(), c.headers(), map[string]string{"query": gql})
	if err != nil {
		return nil, err
	}
	entity, _ := dig(decoded, "data", "actor", "entity").(map[string]any)
	return entity, nil
}

func nrqlPayload(decoded map[string]any) map[string]any {
	payload, _ := dig(decoded, "data", "actor", "account", "nrql").(map[string]any)
	return payload
}

// dig walks nested JSON objects, returning nil when any hop is missing.
func dig(m map[string]any, path ...string) any {
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
