package sources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/internal/querykit"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const TaskSQLQuery = "sql_query"

// SQLManager runs ad-hoc queries against Postgres-compatible databases.
// Query wall-clock limits are enforced with a context deadline; the
// driver cancels the server-side query on expiry, so there is no
// abandoned work left behind.
type SQLManager struct {
	deps Deps
	log  logger.Logger

	// openDB is swappable in tests.
	openDB func(dsn string) (*sql.DB, error)
}

func NewSQLManager(deps Deps) *SQLManager {
	return &SQLManager{
		deps: deps,
		log:  deps.Logger.With("source", models.SourceSQL),
		openDB: func(dsn string) (*sql.DB, error) {
			return sql.Open("postgres", dsn)
		},
	}
}

func (m *SQLManager) Source() models.Source { return models.SourceSQL }

func (m *SQLManager) TaskTypes() []string { return []string{TaskSQLQuery} }

func (m *SQLManager) dsn(connector *models.Connector, database string) (string, error) {
	creds, err := connector.RequireCredentials(models.KeyHost, models.KeyUser, models.KeyPassword)
	if err != nil {
		return "", err
	}
	port := creds[string(models.KeyPort)]
	if port == "" {
		port = "5432"
	}
	if database == "" {
		database = creds[string(models.KeyDatabase)]
	}
	if database == "" {
		return "", fmt.Errorf("sql: %w: database", models.ErrMissingCredential)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=prefer",
		url.QueryEscape(creds[string(models.KeyUser)]),
		url.QueryEscape(creds[string(models.KeyPassword)]),
		creds[string(models.KeyHost)], port, database), nil
}

func (m *SQLManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	dsn, err := m.dsn(connector, "")
	if err != nil {
		return err
	}
	db, err := m.openDB(dsn)
	if err != nil {
		return fmt.Errorf("sql: failed to open connection: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return db.PingContext(pingCtx)
}

func (m *SQLManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	var params models.SQLQueryTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("sql: query is required")
	}

	dsn, err := m.dsn(connector, params.Database)
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

	query := querykit.NormalizeSQL(params.Query)
	query = applyOrderAndWindow(query, params.OrderByColumn, params.Limit, params.Offset)

	db, err := m.openDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("sql: failed to open connection: %w", err)
	}
	defer db.Close()

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	table, err := m.queryTable(queryCtx, db, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("sql: query exceeded the timeout of %s: %w", timeout, err)
		}
		return nil, fmt.Errorf("sql: query failed: %w", err)
	}

	table.RawQuery = fmt.Sprintf("Execute ```%s``` on %s", query, params.Database)
	table.Limit = params.Limit
	table.Offset = params.Offset
	result := models.NewTableResult(models.SourceSQL, table)
	return []models.TaskResult{result}, nil
}

func (m *SQLManager) queryTable(ctx context.Context, db *sql.DB, query string) (*models.TableResult, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	table := &models.TableResult{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := models.TableRow{Columns: make([]models.TableColumn, 0, len(columns))}
		for i, name := range columns {
			row.Columns = append(row.Columns, models.TableColumn{
				Name:  name,
				Value: sqlCellString(values[i]),
			})
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	table.TotalCount = uint64(len(table.Rows))
	return table, nil
}

func sqlCellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// applyOrderAndWindow appends ORDER BY / LIMIT / OFFSET when the task asks
// for them and the query does not already carry the clause.
func applyOrderAndWindow(query, orderBy string, limit, offset uint64) string {
	upper := strings.ToUpper(query)
	if orderBy != "" && !strings.Contains(upper, "ORDER BY") {
		query = fmt.Sprintf("%s ORDER BY %s", query, orderBy)
	}
	if limit > 0 && !strings.Contains(upper, "LIMIT") {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	if offset > 0 && !strings.Contains(upper, "OFFSET") {
		query = fmt.Sprintf("%s OFFSET %d", query, offset)
	}
	return query
}
