package alerting

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/repositories"
	"github.com/sirupsen/logrus"
)

// IncidentManager owns the lifecycle transitions of alert events. All
// writes go through the store's atomic statements; the partial unique index
// on (rule_id, scope_key, firing) is the dedup authority, so a racing
// duplicate open degrades to a no-op.
type IncidentManager struct {
	store repositories.IncidentRepository
	log   *logrus.Logger
}

func NewIncidentManager(store repositories.IncidentRepository, log *logrus.Logger) *IncidentManager {
	return &IncidentManager{store: store, log: log}
}

// Open creates a firing incident for the pair unless the post-resolution
// cooldown is still running. Returns nil without error when the open was
// suppressed (cooldown, or another writer got there first).
func (m *IncidentManager) Open(ctx context.Context, rule *models.AlertRule, scopeKey string, obs Observation, now time.Time) (*models.AlertEvent, error) {
	if rule.CooldownSeconds > 0 {
		lastResolved, err := m.store.LastResolvedAt(ctx, rule.ID, scopeKey)
		if err != nil {
			return nil, fmt.Errorf("cooldown lookup: %w", err)
		}
		if !lastResolved.IsZero() && now.Before(lastResolved.Add(rule.Cooldown())) {
			// Storm suppression: breaches inside the cooldown window are
			// dropped, not queued.
			m.log.WithFields(logrus.Fields{
				"rule": rule.Name, "scope_key": scopeKey,
			}).Debug("Breach suppressed by cooldown")
			return nil, nil
		}
	}

	event := &models.AlertEvent{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Severity: rule.Severity,
		ScopeKey: scopeKey,
		Status:   models.StatusFiring,
		Message:  incidentMessage(rule, scopeKey, obs),
		Details:  incidentDetails(rule, scopeKey, obs),
		FiredAt:  now,
	}

	if err := m.store.Create(ctx, event); err != nil {
		if err == repositories.ErrDuplicateFiring {
			return nil, nil
		}
		return nil, fmt.Errorf("open incident: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"rule": rule.Name, "scope_key": scopeKey, "severity": rule.Severity, "incident": event.ID,
	}).Warn("Incident opened")
	return event, nil
}

// Resolve closes an open incident. A concurrent close is benign.
func (m *IncidentManager) Resolve(ctx context.Context, event *models.AlertEvent, now time.Time) (bool, error) {
	if err := m.store.Close(ctx, event.ID, now); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("close incident: %w", err)
	}

	event.Status = models.StatusResolved
	event.ResolvedAt = sql.NullTime{Time: now, Valid: true}

	m.log.WithFields(logrus.Fields{
		"rule": event.RuleName, "scope_key": event.ScopeKey, "incident": event.ID,
	}).Info("Incident resolved")
	return true, nil
}

// OpenEventIncident handles the single-shot path for event-kind conditions:
// the incident opens and closes within the same tick, is notified, and
// never escalates.
func (m *IncidentManager) OpenEventIncident(ctx context.Context, rule *models.AlertRule, scopeKey string, now time.Time) (*models.AlertEvent, error) {
	event, err := m.Open(ctx, rule, scopeKey, Observation{Breached: true}, now)
	if err != nil || event == nil {
		return nil, err
	}
	if _, err := m.Resolve(ctx, event, now); err != nil {
		return event, err
	}
	return event, nil
}

func incidentMessage(rule *models.AlertRule, scopeKey string, obs Observation) string {
	if obs.HasValue && rule.Threshold.Valid {
		return fmt.Sprintf("%s: %s (value %.2f, threshold %.2f)",
			rule.Name, scopeKey, obs.Value, rule.Threshold.Float64)
	}
	return fmt.Sprintf("%s: %s", rule.Name, scopeKey)
}

func incidentDetails(rule *models.AlertRule, scopeKey string, obs Observation) sql.NullString {
	details := map[string]interface{}{
		"condition": rule.Condition,
		"scope_key": scopeKey,
	}
	if obs.HasValue {
		details["value"] = obs.Value
	}
	if rule.Threshold.Valid {
		details["threshold"] = rule.Threshold.Float64
	}

	data, err := json.Marshal(details)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}
