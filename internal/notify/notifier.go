package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/repositories"
	"github.com/sirupsen/logrus"
)

// IncidentNotifier adapts the dispatcher to the engine's transition
// callbacks. Every call returns immediately; delivery runs detached from
// the tick with its own deadline, because incident correctness never
// depends on whether a human was notified.
type IncidentNotifier struct {
	dispatcher *Dispatcher
	rules      repositories.RuleRepository
	incidents  repositories.IncidentRepository
	log        *logrus.Logger
}

func NewIncidentNotifier(dispatcher *Dispatcher, rules repositories.RuleRepository, incidents repositories.IncidentRepository, log *logrus.Logger) *IncidentNotifier {
	return &IncidentNotifier{
		dispatcher: dispatcher,
		rules:      rules,
		incidents:  incidents,
		log:        log,
	}
}

func (n *IncidentNotifier) NotifyFired(incident *models.AlertEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		channels := n.channelsFor(ctx, incident)
		if len(channels) == 0 {
			return
		}

		msg := Message{
			IncidentID: incident.ID,
			RuleName:   incident.RuleName,
			Severity:   incident.Severity,
			ScopeKey:   incident.ScopeKey,
			Title:      incident.RuleName,
			Body:       incident.Message,
			FiredAt:    incident.FiredAt,
		}

		results := n.dispatcher.Dispatch(ctx, channels, msg, true)
		delivered := AnyDelivered(results)
		if err := n.incidents.MarkNotified(ctx, incident.ID, delivered); err != nil {
			n.log.WithError(err).WithField("incident", incident.ID).
				Warn("Failed to record notification outcome")
		}
		if !delivered {
			n.log.WithField("incident", incident.ID).
				Error("All notification channels failed; incident remains visible on the dashboard")
		}
	}()
}

func (n *IncidentNotifier) NotifyEscalated(incident *models.AlertEvent, level int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		channels := n.channelsFor(ctx, incident)
		if len(channels) == 0 {
			return
		}

		msg := Message{
			IncidentID: incident.ID,
			RuleName:   incident.RuleName,
			Severity:   incident.Severity,
			ScopeKey:   incident.ScopeKey,
			Title:      fmt.Sprintf("[L%d ESCALATION] %s", level, incident.RuleName),
			Body:       incident.Message,
			FiredAt:    incident.FiredAt,
		}

		// No retry: a missed escalation push is superseded by the next
		// tier or by resolution.
		n.dispatcher.Dispatch(ctx, channels, msg, false)
	}()
}

func (n *IncidentNotifier) NotifyResolved(incident *models.AlertEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		channels := n.channelsFor(ctx, incident)
		if len(channels) == 0 {
			return
		}

		msg := Message{
			IncidentID: incident.ID,
			RuleName:   incident.RuleName,
			Severity:   incident.Severity,
			ScopeKey:   incident.ScopeKey,
			Title:      fmt.Sprintf("[RESOLVED] %s", incident.RuleName),
			Body:       incident.Message,
			FiredAt:    incident.FiredAt,
		}

		n.dispatcher.Dispatch(ctx, channels, msg, false)
	}()
}

func (n *IncidentNotifier) channelsFor(ctx context.Context, incident *models.AlertEvent) []string {
	rule, err := n.rules.GetByID(ctx, incident.RuleID)
	if err != nil || rule == nil {
		n.log.WithError(err).WithField("rule_id", incident.RuleID).
			Warn("Cannot resolve notification channels for incident")
		return nil
	}
	return rule.Channels
}
