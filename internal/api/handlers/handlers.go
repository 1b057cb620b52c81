package handlers

import (
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/config"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/websocket"
	"github.com/sirupsen/logrus"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	cfg   *config.Config
	repos *database.Repositories
	log   *logrus.Logger
	wsHub *websocket.Hub
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg *config.Config, repos *database.Repositories, logger *logrus.Logger, wsHub *websocket.Hub) *Handlers {
	return &Handlers{
		cfg:   cfg,
		repos: repos,
		log:   logger,
		wsHub: wsHub,
	}
}
