package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playbookd/sourcekit/internal/clients"
	"github.com/playbookd/sourcekit/internal/flatten"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/internal/querykit"
	"github.com/playbookd/sourcekit/pkg/logger"
)

// ClickHouseManager runs SQL over the ClickHouse HTTP interface. The
// task's wall-clock timeout becomes a context deadline on the request.
type ClickHouseManager struct {
	deps Deps
	http *clients.HTTPClient
	log  logger.Logger
}

func NewClickHouseManager(deps Deps) *ClickHouseManager {
	return &ClickHouseManager{
		deps: deps,
		http: deps.httpClient(models.SourceClickHouse),
		log:  deps.Logger.With("source", models.SourceClickHouse),
	}
}

func (m *ClickHouseManager) Source() models.Source { return models.SourceClickHouse }

func (m *ClickHouseManager) TaskTypes() []string { return []string{TaskSQLQuery} }

func (m *ClickHouseManager) client(connector *models.Connector) (*clients.ClickHouseClient, error) {
	creds, err := connector.RequireCredentials(models.KeyHost)
	if err != nil {
		return nil, err
	}
	return clients.NewClickHouseClient(m.http, creds), nil
}

func (m *ClickHouseManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	client, err := m.client(connector)
	if err != nil {
		return err
	}
	return client.TestConnection(ctx)
}

func (m *ClickHouseManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	var params models.SQLQueryTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("clickhouse: query is required")
	}
	client, err := m.client(connector)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(params.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(m.deps.Cfg.SQLTimeoutSeconds) * time.Second
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	query := querykit.NormalizeSQL(params.Query)
	query = applyOrderAndWindow(query, params.OrderByColumn, params.Limit, params.Offset)

	payload, err := client.Query(queryCtx, params.Database, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("clickhouse: query exceeded the timeout of %s: %w", timeout, context.DeadlineExceeded)
		}
		return nil, err
	}

	records := clickhouseRecords(payload)
	rows := flatten.TableRows(records, clickhouseColumns(payload))
	table := &models.TableResult{
		RawQuery:   fmt.Sprintf("Execute ```%s``` on %s", query, params.Database),
		TotalCount: uint64(len(rows)),
		Limit:      params.Limit,
		Offset:     params.Offset,
		Rows:       rows,
	}
	result := models.NewTableResult(models.SourceClickHouse, table)
	return []models.TaskResult{result}, nil
}

// clickhouseRecords pulls the data rows out of a FORMAT JSON response.
func clickhouseRecords(payload map[string]any) []map[string]any {
	data, _ := payload["data"].([]any)
	out := make([]map[string]any, 0, len(data))
	for _, d := range data {
		if rec, ok := d.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}

// clickhouseColumns preserves the column order FORMAT JSON declares in
// its meta block.
func clickhouseColumns(payload map[string]any) []string {
	meta, _ := payload["meta"].([]any)
	var out []string
	for _, m := range meta {
		col, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if name, _ := col["name"].(string); name != "" {
			out = append(out, name)
		}
	}
	return out
}
