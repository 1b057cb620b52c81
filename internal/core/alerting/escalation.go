package alerting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/core/metrics"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/repositories"
	"github.com/sirupsen/logrus"
)

// Escalator promotes unacknowledged, unsnoozed firing incidents through
// re-notification tiers based on elapsed time since fire. It runs on its
// own tick and never re-evaluates conditions.
type Escalator struct {
	store       repositories.IncidentRepository
	notifier    Notifier
	broadcaster Broadcaster
	level1After time.Duration
	level2After time.Duration
	log         *logrus.Logger
}

func NewEscalator(store repositories.IncidentRepository, notifier Notifier, broadcaster Broadcaster, level1After, level2After time.Duration, log *logrus.Logger) *Escalator {
	if level1After <= 0 {
		level1After = 15 * time.Minute
	}
	if level2After <= 0 {
		level2After = 30 * time.Minute
	}
	return &Escalator{
		store:       store,
		notifier:    notifier,
		broadcaster: broadcaster,
		level1After: level1After,
		level2After: level2After,
		log:         log,
	}
}

// Run scans all firing incidents once. Per-incident failures are isolated.
func (e *Escalator) Run(ctx context.Context, now time.Time) error {
	open, err := e.store.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open incidents: %w", err)
	}

	for _, incident := range open {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.check(ctx, incident, now); err != nil {
			e.log.WithError(err).WithField("incident", incident.ID).
				Error("Escalation check failed")
		}
	}
	return nil
}

func (e *Escalator) check(ctx context.Context, incident *models.AlertEvent, now time.Time) error {
	// Operator actions freeze or postpone escalation. Snooze only shifts
	// timing: once it passes, elapsed-since-fired still decides the tier.
	if incident.Acknowledged() || incident.Snoozed(now) {
		return nil
	}

	target := e.targetLevel(now.Sub(incident.FiredAt))
	if target <= incident.EscalationLevel {
		return nil
	}

	if err := e.store.BumpEscalation(ctx, incident.ID, target); err != nil {
		if err == sql.ErrNoRows {
			// Resolved or already promoted by a concurrent writer.
			return nil
		}
		return err
	}
	incident.EscalationLevel = target

	e.log.WithFields(logrus.Fields{
		"incident": incident.ID, "rule": incident.RuleName,
		"scope_key": incident.ScopeKey, "level": target,
	}).Warn("Incident escalated")
	metrics.EscalationsTotal.WithLabelValues(fmt.Sprintf("%d", target)).Inc()

	if e.notifier != nil {
		e.notifier.NotifyEscalated(incident, target)
	}
	if e.broadcaster != nil {
		e.broadcaster.BroadcastIncident("incident_escalated", incident)
	}
	return nil
}

// targetLevel maps elapsed-since-fired to the escalation tier the incident
// should be at. Levels only ever move up.
func (e *Escalator) targetLevel(elapsed time.Duration) int {
	switch {
	case elapsed >= e.level2After:
		return 2
	case elapsed >= e.level1After:
		return 1
	}
	return 0
}
