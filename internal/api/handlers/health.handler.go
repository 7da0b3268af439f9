package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/playbookd/sourcekit/internal/sources"
)

type HealthHandler struct {
	registry *sources.Registry
}

func NewHealthHandler(registry *sources.Registry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

// GET /health - Quick health check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "sourcekit",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GET /api/v1/sources - Registered sources and their task types
func (h *HealthHandler) Sources(c *gin.Context) {
	out := make(map[string][]string)
	for _, source := range h.registry.Sources() {
		manager, ok := h.registry.Manager(source)
		if !ok {
			continue
		}
		out[string(source)] = manager.TaskTypes()
	}
	c.JSON(http.StatusOK, gin.H{"sources": out})
}
