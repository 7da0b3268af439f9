package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/playbookd/sourcekit/internal/clients"
	"github.com/playbookd/sourcekit/internal/flatten"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const TaskHogQLQuery = "hogql_query"

// PostHogManager executes HogQL queries against a PostHog project.
type PostHogManager struct {
	deps Deps
	http *clients.HTTPClient
	log  logger.Logger
}

func NewPostHogManager(deps Deps) *PostHogManager {
	return &PostHogManager{
		deps: deps,
		http: deps.httpClient(models.SourcePostHog),
		log:  deps.Logger.With("source", models.SourcePostHog),
	}
}

func (m *PostHogManager) Source() models.Source { return models.SourcePostHog }

func (m *PostHogManager) TaskTypes() []string { return []string{TaskHogQLQuery} }

func (m *PostHogManager) client(connector *models.Connector) (*clients.PostHogClient, error) {
	creds, err := connector.RequireCredentials(models.KeyAPIKey, models.KeyProjectID)
	if err != nil {
		return nil, err
	}
	return clients.NewPostHogClient(m.http, creds), nil
}

func (m *PostHogManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	client, err := m.client(connector)
	if err != nil {
		return err
	}
	return client.TestConnection(ctx)
}

func (m *PostHogManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	if task.Type != TaskHogQLQuery {
		return nil, fmt.Errorf("posthog: unknown task type %q", task.Type)
	}
	var params models.HogQLQueryTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("posthog: query is required")
	}
	client, err := m.client(connector)
	if err != nil {
		return nil, err
	}

	payload, err := client.ExecuteHogQL(ctx, params.Query)
	if err != nil {
		return nil, err
	}

	columns := stringList(payload["columns"])
	rawRows, _ := payload["results"].([]any)
	if len(rawRows) == 0 {
		msg := fmt.Sprintf("No results returned from PostHog for query: %s", params.Query)
		return []models.TaskResult{models.NewTextResult(models.SourcePostHog, msg)}, nil
	}

	// HogQL rows are positional arrays matching the columns header.
	rows := make([]models.TableRow, 0, len(rawRows))
	for _, r := range rawRows {
		cells, ok := r.([]any)
		if !ok {
			continue
		}
		row := models.TableRow{Columns: make([]models.TableColumn, 0, len(cells))}
		for i, cell := range cells {
			name := fmt.Sprintf("column_%d", i)
			if i < len(columns) {
				name = columns[i]
			}
			row.Columns = append(row.Columns, models.TableColumn{
				Name:  name,
				Value: flatten.Stringify(cell),
			})
		}
		rows = append(rows, row)
	}

	table := &models.TableResult{
		RawQuery:   params.Query,
		TotalCount: uint64(len(rows)),
		Rows:       rows,
	}
	result := models.NewTableResult(models.SourcePostHog, table)
	return []models.TaskResult{result}, nil
}

func stringList(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
