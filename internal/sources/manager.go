// Package sources implements the per-vendor task executors and the
// registry that dispatches tasks to them. Every executor follows the same
// contract: configuration problems (no connector, missing credential) are
// returned as errors before any network call, upstream and partial
// failures degrade into text results, and every returned result is tagged
// with the executor's source.
package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/playbookd/sourcekit/internal/metrics"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/internal/tracing"
	"github.com/playbookd/sourcekit/pkg/logger"
)

// SourceManager executes the tasks of one vendor integration.
type SourceManager interface {
	Source() models.Source
	TaskTypes() []string
	Execute(ctx context.Context, tr models.TimeRange, task *models.Task, connector *models.Connector) ([]models.TaskResult, error)
	TestConnection(ctx context.Context, connector *models.Connector) error
}

// Registry routes tasks to the manager registered for their source.
type Registry struct {
	managers map[models.Source]SourceManager
	tracer   *tracing.TaskTracer
	logger   logger.Logger
	now      func() time.Time
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		managers: make(map[models.Source]SourceManager),
		tracer:   tracing.NewTaskTracer(),
		logger:   log,
		now:      time.Now,
	}
}

func (r *Registry) Register(m SourceManager) {
	r.managers[m.Source()] = m
}

// Manager returns the executor for a source, if one is registered.
func (r *Registry) Manager(source models.Source) (SourceManager, bool) {
	m, ok := r.managers[source]
	return m, ok
}

// Sources lists the registered sources.
func (r *Registry) Sources() []models.Source {
	out := make([]models.Source, 0, len(r.managers))
	for s := range r.managers {
		out = append(out, s)
	}
	return out
}

// Execute dispatches one task. The time range falls back to the last hour
// when absent or inverted. Results come back tagged with the task's
// source even when the executor forgot to set it.
func (r *Registry) Execute(ctx context.Context, task *models.Task, connector *models.Connector) ([]models.TaskResult, error) {
	manager, ok := r.managers[task.Source]
	if !ok {
		return nil, fmt.Errorf("no executor registered for source %q", task.Source)
	}
	if connector == nil {
		return nil, fmt.Errorf("%s: %w", task.Source, models.ErrMissingConnector)
	}

	tr, defaulted := task.TimeRange.OrDefault(r.now())
	if defaulted {
		r.logger.Warn("task time range missing or inverted, defaulting to last hour",
			"source", task.Source, "task_type", task.Type)
	}

	connectorName := connector.Name
	spanCtx, span := r.tracer.StartTaskSpan(ctx, string(task.Source), task.Type, connectorName)

	start := r.now()
	results, err := manager.Execute(spanCtx, tr, task, connector)
	elapsed := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordTaskExecution(string(task.Source), task.Type, status, elapsed)
	r.tracer.EndTaskSpan(span, len(results), err)

	if err != nil {
		r.logger.Error("task execution failed",
			"source", task.Source, "task_type", task.Type, "connector", connectorName, "error", err)
		return nil, err
	}

	for i := range results {
		if results[i].Source == "" {
			results[i].Source = task.Source
		}
	}
	r.logger.Info("task executed",
		"source", task.Source, "task_type", task.Type, "results", len(results), "duration_seconds", elapsed)
	return results, nil
}

// TestConnection checks a connector's credentials against its vendor.
func (r *Registry) TestConnection(ctx context.Context, connector *models.Connector) error {
	manager, ok := r.managers[connector.Type]
	if !ok {
		return fmt.Errorf("no executor registered for source %q", connector.Type)
	}
	return manager.TestConnection(ctx, connector)
}
