package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	apperrors "github.com/mailwatch-ops/mailwatch-backend-go/pkg/errors"
	"github.com/mailwatch-ops/mailwatch-backend-go/pkg/utils"
)

// GetIncidents returns incident history, newest first, with limit/offset
// pagination.
func (h *Handlers) GetIncidents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	incidents, err := h.repos.Incidents.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	utils.SendSuccessWithMeta(c, incidentViews(incidents), gin.H{
		"limit":  limit,
		"offset": offset,
	})
}

// GetOpenIncidents returns all currently firing incidents
func (h *Handlers) GetOpenIncidents(c *gin.Context) {
	incidents, err := h.repos.Incidents.ListOpen(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	utils.SendSuccess(c, incidentViews(incidents))
}

// GetIncident returns a single incident by id
func (h *Handlers) GetIncident(c *gin.Context) {
	incident, err := h.repos.Incidents.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	if incident == nil {
		c.Error(apperrors.ErrNotFound)
		return
	}

	utils.SendSuccess(c, incident.View())
}

// AcknowledgeRequest is the payload for taking ownership of an incident.
type AcknowledgeRequest struct {
	User string `json:"user" binding:"required"`
}

// AcknowledgeIncident records operator ownership. Acknowledging freezes
// further escalation; it does not resolve the incident.
func (h *Handlers) AcknowledgeIncident(c *gin.Context) {
	var req AcknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.WithDetails(apperrors.ErrBadRequest, err.Error()))
		return
	}

	id := c.Param("id")
	err := h.repos.Incidents.Acknowledge(c.Request.Context(), id, req.User, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		c.Error(apperrors.New(http.StatusConflict, "Incident not found or already acknowledged"))
		return
	}
	if err != nil {
		c.Error(err)
		return
	}

	incident, err := h.repos.Incidents.GetByID(c.Request.Context(), id)
	if err != nil || incident == nil {
		utils.SendSuccess(c, gin.H{"acknowledged": id})
		return
	}
	utils.SendSuccess(c, incident.View())
}

// SnoozeRequest is the payload for suppressing escalation for a while.
type SnoozeRequest struct {
	Duration string `json:"duration" binding:"required"`
}

// SnoozeIncident suppresses escalation until now + duration. Snoozing only
// applies while the incident is firing.
func (h *Handlers) SnoozeIncident(c *gin.Context) {
	var req SnoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.WithDetails(apperrors.ErrBadRequest, err.Error()))
		return
	}

	d, err := time.ParseDuration(req.Duration)
	if err != nil || d <= 0 {
		c.Error(apperrors.WithDetails(apperrors.ErrBadRequest, "invalid snooze duration"))
		return
	}

	id := c.Param("id")
	until := time.Now().UTC().Add(d)
	err = h.repos.Incidents.Snooze(c.Request.Context(), id, until)
	if errors.Is(err, sql.ErrNoRows) {
		c.Error(apperrors.New(http.StatusConflict, "Incident not found or not firing"))
		return
	}
	if err != nil {
		c.Error(err)
		return
	}

	utils.SendSuccess(c, gin.H{"snoozed_until": until.Format(time.RFC3339)})
}

func incidentViews(incidents []*models.AlertEvent) []models.AlertEventView {
	views := make([]models.AlertEventView, 0, len(incidents))
	for _, incident := range incidents {
		views = append(views, incident.View())
	}
	return views
}
