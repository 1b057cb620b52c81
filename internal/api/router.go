package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/api/handlers"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/api/middleware"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/config"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, repos *database.Repositories, logger *logrus.Logger, wsHub *websocket.Hub) *gin.Engine {
	if cfg.Server.Mode == "release" || cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	h := handlers.NewHandlers(cfg, repos, logger, wsHub)

	// Public routes
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint for live incident updates
	router.GET("/ws", h.WebSocketHandler(wsHub))

	// API v1 routes
	api := router.Group("/api/v1")
	{
		rules := api.Group("/rules")
		{
			rules.GET("", h.GetRules)
			rules.GET("/:id", h.GetRule)
			rules.POST("", h.CreateRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
		}

		incidents := api.Group("/incidents")
		{
			incidents.GET("", h.GetIncidents)
			incidents.GET("/open", h.GetOpenIncidents)
			incidents.GET("/:id", h.GetIncident)
			incidents.POST("/:id/ack", h.AcknowledgeIncident)
			incidents.POST("/:id/snooze", h.SnoozeIncident)
		}

		ws := api.Group("/websocket")
		{
			ws.GET("/stats", h.GetWebSocketStats(wsHub))
		}
	}

	return router
}
