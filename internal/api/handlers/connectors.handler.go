package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/playbookd/sourcekit/internal/config"
	"github.com/playbookd/sourcekit/internal/sources"
	"github.com/playbookd/sourcekit/pkg/logger"
)

// ConnectorsHandler exposes the configured connectors without their
// credential values.
type ConnectorsHandler struct {
	registry   *sources.Registry
	connectors *config.ConnectorStore
	logger     logger.Logger
}

func NewConnectorsHandler(registry *sources.Registry, connectors *config.ConnectorStore, log logger.Logger) *ConnectorsHandler {
	return &ConnectorsHandler{
		registry:   registry,
		connectors: connectors,
		logger:     log,
	}
}

// ConnectorSummary is a redacted connector listing entry. Key values never
// leave the process.
type ConnectorSummary struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	KeyTypes  []string `json:"key_types"`
	TaskTypes []string `json:"task_types,omitempty"`
}

// GET /api/v1/connectors
func (h *ConnectorsHandler) List(c *gin.Context) {
	all := h.connectors.List()
	out := make([]ConnectorSummary, 0, len(all))
	for _, connector := range all {
		summary := ConnectorSummary{
			Name:     connector.Name,
			Type:     string(connector.Type),
			KeyTypes: make([]string, 0, len(connector.Keys)),
		}
		for _, k := range connector.Keys {
			summary.KeyTypes = append(summary.KeyTypes, string(k.Type))
		}
		if manager, ok := h.registry.Manager(connector.Type); ok {
			summary.TaskTypes = manager.TaskTypes()
		}
		out = append(out, summary)
	}
	c.JSON(http.StatusOK, gin.H{"connectors": out})
}

// POST /api/v1/connectors/:name/test
func (h *ConnectorsHandler) Test(c *gin.Context) {
	name := c.Param("name")
	connector, ok := h.connectors.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown connector: " + name})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := h.registry.TestConnection(ctx, &connector); err != nil {
		h.logger.Warn("connection test failed", "connector", name, "error", err)
		c.JSON(http.StatusOK, gin.H{
			"connector": name,
			"type":      connector.Type,
			"status":    "failed",
			"error":     err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connector": name,
		"type":      connector.Type,
		"status":    "ok",
	})
}
