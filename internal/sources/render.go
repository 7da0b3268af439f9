package sources

import (
	"context"
	"fmt"

	"github.com/playbookd/sourcekit/internal/clients"
	"github.com/playbookd/sourcekit/internal/flatten"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const (
	TaskRenderLogs    = "fetch_service_logs"
	TaskRenderDeploys = "list_deploys"
)

// RenderManager fetches service logs and deploy history from Render.
type RenderManager struct {
	deps Deps
	http *clients.HTTPClient
	log  logger.Logger
}

func NewRenderManager(deps Deps) *RenderManager {
	return &RenderManager{
		deps: deps,
		http: deps.httpClient(models.SourceRender),
		log:  deps.Logger.With("source", models.SourceRender),
	}
}

func (m *RenderManager) Source() models.Source { return models.SourceRender }

func (m *RenderManager) TaskTypes() []string { return []string{TaskRenderLogs, TaskRenderDeploys} }

func (m *RenderManager) client(connector *models.Connector) (*clients.RenderClient, error) {
	creds, err := connector.RequireCredentials(models.KeyAPIKey)
	if err != nil {
		return nil, err
	}
	return clients.NewRenderClient(m.http, creds), nil
}

func (m *RenderManager) TestConnection(ctx context.Context, connector *models.Connector) error {
	client, err := m.client(connector)
	if err != nil {
		return err
	}
	return client.TestConnection(ctx)
}

func (m *RenderManager) Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	var params models.RenderLogsTask
	if err := task.DecodeParams(&params); err != nil {
		return nil, err
	}
	if params.ServiceID == "" {
		return nil, fmt.Errorf("render: service_id is required")
	}
	client, err := m.client(connector)
	if err != nil {
		return nil, err
	}

	switch task.Type {
	case TaskRenderLogs:
		return m.executeFetchLogs(ctx, tr, params, client)
	case TaskRenderDeploys:
		return m.executeListDeploys(ctx, params, client)
	default:
		return nil, fmt.Errorf("render: unknown task type %q", task.Type)
	}
}

func (m *RenderManager) executeFetchLogs(ctx context.Context, tr models.TimeRange, params models.RenderLogsTask, client *clients.RenderClient) ([]models.TaskResult, error) {
	payload, err := client.FetchLogs(ctx, params.ServiceID, tr, params.Limit)
	if err != nil {
		return nil, err
	}

	logs, _ := payload["logs"].([]any)
	if len(logs) == 0 {
		msg := fmt.Sprintf("No logs found for service %s in the given time range", params.ServiceID)
		return []models.TaskResult{models.NewTextResult(models.SourceRender, msg)}, nil
	}

	records := make([]map[string]any, 0, len(logs))
	for _, l := range logs {
		if rec, ok := l.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	table := &models.TableResult{
		RawQuery:   fmt.Sprintf("logs for service %s", params.ServiceID),
		TotalCount: uint64(len(records)),
		Rows:       flatten.TableRows(records, []string{"timestamp", "message", "type"}),
	}
	result := models.NewTableResult(models.SourceRender, table).WithMetadata(map[string]any{
		"service_id": params.ServiceID,
		"start_time": tr.StartMillis(),
		"end_time":   tr.EndMillis(),
	})
	return []models.TaskResult{result}, nil
}

func (m *RenderManager) executeListDeploys(ctx context.Context, params models.RenderLogsTask, client *clients.RenderClient) ([]models.TaskResult, error) {
	deploys, err := client.ListDeploys(ctx, params.ServiceID)
	if err != nil {
		return nil, err
	}
	if len(deploys) == 0 {
		msg := fmt.Sprintf("No deploys found for service %s", params.ServiceID)
		return []models.TaskResult{models.NewTextResult(models.SourceRender, msg)}, nil
	}

	// The deploys endpoint wraps each item as {"deploy": {...}, "cursor": ...}.
	records := make([]map[string]any, 0, len(deploys))
	for _, d := range deploys {
		item, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if deploy, ok := item["deploy"].(map[string]any); ok {
			records = append(records, deploy)
			continue
		}
		records = append(records, item)
	}
	table := &models.TableResult{
		RawQuery:   fmt.Sprintf("deploys for service %s", params.ServiceID),
		TotalCount: uint64(len(records)),
		Rows:       flatten.TableRows(records, []string{"id", "status", "trigger", "createdAt", "finishedAt"}),
	}
	result := models.NewTableResult(models.SourceRender, table)
	return []models.TaskResult{result}, nil
}
