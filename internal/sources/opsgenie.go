package sources

import (
	"context"
	"fmt"

	"github.com/playbookd/sourcekit/internal/clients"
	"github.com/playbookd/sourcekit/internal/flatten"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const TaskOpsGenieAlerts = "fetch_alerts"

// alert fields surfaced in the table result, in display order
var opsGenieAlertColumns = []string{"id", "message", "status", "priority", "createdAt", "updatedAt", "owner", "acknowledged"}

// OpsGenieManager fetches and searches alerts.
type OpsGenieManager struct {
	deps Deps
	http *clients.HTTPClient
	log  logger.Logger
}

func NewOpsGenieManager(deps Deps) *OpsGenieManager {
	return &OpsGenieManager{
		deps: deps,
		http: deps.httpClient(models.SourceOpsGenie),
		log:  deps.Logger.With("source", models.SourceOpsGenie),
	}
}

func (m *OpsGenieManager) Source() models.Source { return models.SourceOpsGenie }

func (m *OpsGenieManager) TaskTypes() []string { return []string{TaskOpsGenieAlerts} }

func (m *OpsGenieManager) client(connector *models.Connector) (*clients.OpsGenieClient, error) {
	creds, err := connector.RequireCredentials(models.KeyAPIKey)
	if err != nil {
		return nil, err
	}
	return clients.NewOpsGenieClient(m.http, creds), nil
}

func (m *OpsGenieManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	client, err := m.client(connector)
	if err != nil {
		return err
	}
	return client.TestConnection(ctx)
}

func (m *OpsGenieManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	if task.Type != TaskOpsGenieAlerts {
		return nil, fmt.Errorf("opsgenie: unknown task type %q", task.Type)
	}
	var params models.OpsGenieAlertsTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	client, err := m.client(connector)
	if err != nil {
		return nil, err
	}

	payload, err := client.ListAlerts(ctx, params.Query, params.Limit, 0)
	if err != nil {
		return nil, err
	}

	alerts, _ := payload["data"].([]any)
	if len(alerts) == 0 {
		msg := "No alerts found"
		if params.Query != "" {
			msg = fmt.Sprintf("No alerts found for query: %s", params.Query)
		}
		return []models.TaskResult{models.NewTextResult(models.SourceOpsGenie, msg)}, nil
	}

	records := make([]map[string]any, 0, len(alerts))
	for _, a := range alerts {
		if rec, ok := a.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	table := &models.TableResult{
		RawQuery:   params.Query,
		TotalCount: uint64(len(records)),
		Rows:       flatten.TableRows(records, opsGenieAlertColumns),
	}
	result := models.NewTableResult(models.SourceOpsGenie, table)
	return []models.TaskResult{result}, nil
}
