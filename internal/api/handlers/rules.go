package handlers

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/core/alerting"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/websocket"
	apperrors "github.com/mailwatch-ops/mailwatch-backend-go/pkg/errors"
	"github.com/mailwatch-ops/mailwatch-backend-go/pkg/utils"
)

// RuleRequest is the create/update payload for an alert rule.
type RuleRequest struct {
	Name      string   `json:"name" binding:"required"`
	Severity  string   `json:"severity" binding:"required"`
	Condition string   `json:"condition" binding:"required"`
	Threshold *float64 `json:"threshold"`
	Duration  string   `json:"duration"`
	Cooldown  string   `json:"cooldown"`
	Channels  []string `json:"channels"`
	Enabled   *bool    `json:"enabled"`
}

func (req *RuleRequest) toModel() (*models.AlertRule, error) {
	rule := &models.AlertRule{
		Name:      req.Name,
		Severity:  req.Severity,
		Condition: req.Condition,
		Channels:  models.ChannelList(req.Channels),
		Enabled:   true,
	}
	if req.Threshold != nil {
		rule.Threshold = sql.NullFloat64{Float64: *req.Threshold, Valid: true}
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			return nil, err
		}
		rule.DurationSeconds = int64(d / time.Second)
	}

	rule.CooldownSeconds = int64(30 * time.Minute / time.Second)
	if req.Cooldown != "" {
		d, err := time.ParseDuration(req.Cooldown)
		if err != nil {
			return nil, err
		}
		rule.CooldownSeconds = int64(d / time.Second)
	}

	return rule, alerting.ValidateRule(rule)
}

// GetRules returns all alert rules
func (h *Handlers) GetRules(c *gin.Context) {
	rules, err := h.repos.Rules.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	views := make([]models.AlertRuleView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, rule.View())
	}
	utils.SendSuccess(c, views)
}

// GetRule returns a single rule by id
func (h *Handlers) GetRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(apperrors.WithDetails(apperrors.ErrBadRequest, "invalid rule id"))
		return
	}

	rule, err := h.repos.Rules.GetByID(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	if rule == nil {
		c.Error(apperrors.ErrNotFound)
		return
	}

	utils.SendSuccess(c, rule.View())
}

// CreateRule creates a new alert rule
func (h *Handlers) CreateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.WithDetails(apperrors.ErrBadRequest, err.Error()))
		return
	}

	rule, err := req.toModel()
	if err != nil {
		c.Error(apperrors.WithDetails(apperrors.ErrBadRequest, err.Error()))
		return
	}

	existing, err := h.repos.Rules.GetByName(c.Request.Context(), rule.Name)
	if err != nil {
		c.Error(err)
		return
	}
	if existing != nil {
		c.Error(apperrors.WithDetails(apperrors.ErrConflict, "a rule with this name already exists"))
		return
	}

	if err := h.repos.Rules.Create(c.Request.Context(), rule); err != nil {
		c.Error(err)
		return
	}

	h.broadcastRuleChange(rule)
	utils.SendCreated(c, rule.View())
}

// UpdateRule updates an existing alert rule
func (h *Handlers) UpdateRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(apperrors.WithDetails(apperrors.ErrBadRequest, "invalid rule id"))
		return
	}

	existing, err := h.repos.Rules.GetByID(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	if existing == nil {
		c.Error(apperrors.ErrNotFound)
		return
	}

	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.WithDetails(apperrors.ErrBadRequest, err.Error()))
		return
	}

	rule, err := req.toModel()
	if err != nil {
		c.Error(apperrors.WithDetails(apperrors.ErrBadRequest, err.Error()))
		return
	}
	rule.ID = id

	if err := h.repos.Rules.Update(c.Request.Context(), rule); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.Error(apperrors.ErrNotFound)
			return
		}
		c.Error(err)
		return
	}

	h.broadcastRuleChange(rule)
	utils.SendSuccess(c, rule.View())
}

// DeleteRule deletes an alert rule
func (h *Handlers) DeleteRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(apperrors.WithDetails(apperrors.ErrBadRequest, "invalid rule id"))
		return
	}

	if err := h.repos.Rules.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.Error(apperrors.ErrNotFound)
			return
		}
		c.Error(err)
		return
	}

	utils.SendSuccess(c, gin.H{"deleted": id})
}

func (h *Handlers) broadcastRuleChange(rule *models.AlertRule) {
	if h.wsHub == nil {
		return
	}
	h.wsHub.BroadcastToAll(websocket.Message{
		Type: websocket.MessageTypeRuleUpdated,
		Data: map[string]interface{}{
			"rule": rule.View(),
		},
	})
}
