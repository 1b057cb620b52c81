package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health reports service liveness plus a few engine counters the dashboard
// polls to decide whether the backend is healthy.
func (h *Handlers) Health(c *gin.Context) {
	health := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "mailwatch-backend-go",
		"version":   "1.0.0",
	}

	open, err := h.repos.Incidents.ListOpen(c.Request.Context())
	if err != nil {
		health["status"] = "degraded"
		health["database"] = "unreachable"
	} else {
		health["database"] = "ok"
		health["open_incidents"] = len(open)
	}

	if h.wsHub != nil {
		health["websocket_clients"] = h.wsHub.GetClientCount()
	}

	c.JSON(http.StatusOK, health)
}
