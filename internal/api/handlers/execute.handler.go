package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playbookd/sourcekit/internal/config"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/internal/sources"
	"github.com/playbookd/sourcekit/pkg/logger"
)

// ExecuteHandler runs playbook tasks through the source registry.
type ExecuteHandler struct {
	registry   *sources.Registry
	connectors *config.ConnectorStore
	logger     logger.Logger
}

func NewExecuteHandler(registry *sources.Registry, connectors *config.ConnectorStore, log logger.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		registry:   registry,
		connectors: connectors,
		logger:     log,
	}
}

// ExecuteRequest is the wire form of one task execution.
type ExecuteRequest struct {
	ConnectorName string      `json:"connector_name" binding:"required"`
	Task          models.Task `json:"task" binding:"required"`
}

type ExecuteResponse struct {
	RequestID string              `json:"request_id,omitempty"`
	Results   []models.TaskResult `json:"results"`
}

// POST /api/v1/execute
func (h *ExecuteHandler) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Task.Source == "" || req.Task.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task.source and task.task_type are required"})
		return
	}

	connector, ok := h.connectors.Get(req.ConnectorName)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown connector: " + req.ConnectorName})
		return
	}
	if connector.Type != req.Task.Source {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "connector " + req.ConnectorName + " is for source " + string(connector.Type) +
				", task wants " + string(req.Task.Source),
		})
		return
	}

	results, err := h.registry.Execute(c.Request.Context(), &req.Task, &connector)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, models.ErrMissingConnector) || errors.Is(err, models.ErrMissingCredential) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ExecuteResponse{
		RequestID: c.GetString("request_id"),
		Results:   results,
	})
}
