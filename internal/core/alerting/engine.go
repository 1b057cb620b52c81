// Package alerting implements the alert rule evaluation and escalation
// engine: it turns time-series facts into deduplicated incidents and drives
// their lifecycle. The engine is dormant between ticks; an external
// scheduler invokes EvaluationTick and EscalationTick.
package alerting

import (
	"context"
	"time"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/core/facts"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/core/metrics"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/repositories"
	"github.com/sirupsen/logrus"
)

// Notifier receives incident transitions for delivery. Implementations
// must return promptly; delivery happens off the tick path.
type Notifier interface {
	NotifyFired(incident *models.AlertEvent)
	NotifyEscalated(incident *models.AlertEvent, level int)
	NotifyResolved(incident *models.AlertEvent)
}

// Broadcaster pushes incident transitions to connected dashboards.
type Broadcaster interface {
	BroadcastIncident(kind string, incident *models.AlertEvent)
}

// Config carries the engine's timing knobs.
type Config struct {
	TickBudget  time.Duration
	Level1After time.Duration
	Level2After time.Duration
}

// Engine wires the condition evaluator, window tracker, incident state
// machine and escalator together. All incident mutation goes through the
// IncidentManager and Escalator transition functions, never directly.
type Engine struct {
	rules       repositories.RuleRepository
	incidentsDB repositories.IncidentRepository
	provider    facts.Provider
	window      *WindowTracker
	incidents   *IncidentManager
	escalator   *Escalator
	notifier    Notifier
	broadcaster Broadcaster
	log         *logrus.Logger

	tickBudget time.Duration
	now        func() time.Time

	// Events are one-shot: each tick consumes only events that occurred
	// after the previous scan. The cursor advances only when every event
	// slot in the window was handled; consumedEvents remembers the slots
	// that already opened an incident so a retried window cannot open a
	// second one for the same occurrence.
	lastEventScan  time.Time
	consumedEvents map[string]bool

	condCache map[int64]condCacheEntry
}

type condCacheEntry struct {
	updatedAt time.Time
	cond      Condition
}

func NewEngine(cfg Config, rules repositories.RuleRepository, incidents repositories.IncidentRepository, provider facts.Provider, notifier Notifier, broadcaster Broadcaster, log *logrus.Logger) *Engine {
	if cfg.TickBudget <= 0 {
		cfg.TickBudget = 10 * time.Second
	}
	e := &Engine{
		rules:       rules,
		incidentsDB: incidents,
		provider:    provider,
		window:      NewWindowTracker(),
		incidents:   NewIncidentManager(incidents, log),
		notifier:    notifier,
		broadcaster: broadcaster,
		log:         log,
		tickBudget:  cfg.TickBudget,
		now:         time.Now,
		condCache:   make(map[int64]condCacheEntry),

		consumedEvents: make(map[string]bool),
	}
	e.escalator = NewEscalator(incidents, notifier, broadcaster, cfg.Level1After, cfg.Level2After, log)
	e.lastEventScan = e.now()
	return e
}

// SetClock replaces the engine's time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.lastEventScan = now()
	e.consumedEvents = make(map[string]bool)
}

// EvaluationTick evaluates every enabled rule against a fresh fact
// snapshot and applies incident transitions. Rules and entities are
// independent; a failure in one (rule, entity) slot is logged and skipped.
// When the wall-clock budget runs out the tick returns with partial
// progress; the next tick re-observes state.
func (e *Engine) EvaluationTick(ctx context.Context) error {
	start := e.now()
	defer func() {
		metrics.TickDuration.WithLabelValues("evaluation").Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithDeadline(ctx, start.Add(e.tickBudget))
	defer cancel()

	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return err
	}

	compiled := e.compile(rules)

	active := make(map[int64]bool, len(compiled))
	for _, cr := range compiled {
		active[cr.rule.ID] = true
	}
	// Disabled or deleted rules retain no streak state.
	e.window.PruneExcept(active)

	snap := e.snapshot(ctx, compiled, start)

	openIndex, err := e.openIncidentIndex(ctx)
	if err != nil {
		return err
	}

	eventsClean := true
	for _, cr := range compiled {
		for _, scopeKey := range e.candidates(cr, snap, openIndex) {
			if ctx.Err() != nil {
				// Unattempted event slots stay inside the scan window.
				e.log.WithField("budget", e.tickBudget).Warn("Evaluation tick budget exceeded, returning partial progress")
				return nil
			}
			if err := e.evaluateSlot(ctx, cr, scopeKey, snap, openIndex, start); err != nil && cr.cond.Kind == KindEvent {
				eventsClean = false
			}
		}
	}

	// A failed event slot holds the scan window open so the occurrence is
	// re-observed next tick instead of being lost; slots that succeeded are
	// remembered in consumedEvents and will not open twice.
	if eventsClean {
		e.lastEventScan = start
		e.consumedEvents = make(map[string]bool)
	}

	e.updateOpenGauge(ctx)
	return nil
}

// EscalationTick scans open incidents for tier promotion. Independent from
// evaluation; it never re-evaluates conditions.
func (e *Engine) EscalationTick(ctx context.Context) error {
	start := e.now()
	defer func() {
		metrics.TickDuration.WithLabelValues("escalation").Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithDeadline(ctx, start.Add(e.tickBudget))
	defer cancel()

	return e.escalator.Run(ctx, start)
}

type compiledRule struct {
	rule *models.AlertRule
	cond Condition
}

// compile parses rule conditions, caching by (id, updated_at) so the DSL is
// parsed at rule-load time rather than every tick. Invalid rules are logged
// and skipped.
func (e *Engine) compile(rules []*models.AlertRule) []compiledRule {
	compiled := make([]compiledRule, 0, len(rules))
	seen := make(map[int64]bool, len(rules))

	for _, rule := range rules {
		seen[rule.ID] = true

		if entry, ok := e.condCache[rule.ID]; ok && entry.updatedAt.Equal(rule.UpdatedAt) {
			compiled = append(compiled, compiledRule{rule: rule, cond: entry.cond})
			continue
		}

		cond, err := ParseCondition(rule.Condition)
		if err != nil {
			e.log.WithError(err).WithField("rule", rule.Name).Error("Skipping rule with invalid condition")
			continue
		}
		if cond.Kind == KindThreshold && !rule.Threshold.Valid {
			e.log.WithField("rule", rule.Name).Error("Skipping threshold rule without threshold value")
			continue
		}

		e.condCache[rule.ID] = condCacheEntry{updatedAt: rule.UpdatedAt, cond: cond}
		compiled = append(compiled, compiledRule{rule: rule, cond: cond})
	}

	for id := range e.condCache {
		if !seen[id] {
			delete(e.condCache, id)
		}
	}
	return compiled
}

// snapshot batches all fact reads for the tick up front.
func (e *Engine) snapshot(ctx context.Context, compiled []compiledRule, now time.Time) *facts.Snapshot {
	metricSet := make(map[facts.MetricKey]bool)
	signalSet := make(map[string]bool)

	for _, cr := range compiled {
		switch cr.cond.Kind {
		case KindThreshold:
			metricSet[facts.MetricKey{Scope: cr.cond.Scope, Metric: cr.cond.Metric}] = true
		case KindSignal:
			signalSet[cr.cond.Signal] = true
		}
	}

	metricKeys := make([]facts.MetricKey, 0, len(metricSet))
	for key := range metricSet {
		metricKeys = append(metricKeys, key)
	}
	signals := make([]string, 0, len(signalSet))
	for signal := range signalSet {
		signals = append(signals, signal)
	}

	return e.provider.Snapshot(ctx, metricKeys, signals, e.lastEventScan, now)
}

func (e *Engine) openIncidentIndex(ctx context.Context) (map[string]*models.AlertEvent, error) {
	open, err := e.incidentsDB.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*models.AlertEvent, len(open))
	for _, incident := range open {
		index[windowKey(incident.RuleID, incident.ScopeKey)] = incident
	}
	return index, nil
}

// candidates unions entities with fresh data and entities holding an open
// incident for the rule, so incidents resolve even when the entity stops
// appearing in the facts.
func (e *Engine) candidates(cr compiledRule, snap *facts.Snapshot, openIndex map[string]*models.AlertEvent) []string {
	keys := EntitiesFor(cr.cond, snap)

	inSnap := make(map[string]bool, len(keys))
	for _, k := range keys {
		inSnap[k] = true
	}
	for _, incident := range openIndex {
		if incident.RuleID == cr.rule.ID && !inSnap[incident.ScopeKey] {
			keys = append(keys, incident.ScopeKey)
		}
	}
	return keys
}

// evaluateSlot runs the state machine for one (rule, entity) pair. A
// returned error means the slot's transition did not complete and must be
// retried next tick.
func (e *Engine) evaluateSlot(ctx context.Context, cr compiledRule, scopeKey string, snap *facts.Snapshot, openIndex map[string]*models.AlertEvent, now time.Time) error {
	metrics.EvaluationsTotal.Inc()

	obs := Observe(cr.cond, cr.rule, snap, scopeKey)
	open := openIndex[windowKey(cr.rule.ID, scopeKey)]

	// Event conditions are single-shot: open and close in the same tick,
	// notified but never duration-gated and never escalated.
	if cr.cond.Kind == KindEvent {
		if !obs.Breached {
			return nil
		}
		slot := windowKey(cr.rule.ID, scopeKey)
		if e.consumedEvents[slot] {
			// Already recorded; the window is only still open because a
			// different slot failed.
			return nil
		}
		incident, err := e.incidents.OpenEventIncident(ctx, cr.rule, scopeKey, now)
		if err != nil {
			metrics.EvaluationFailuresTotal.Inc()
			e.log.WithError(err).WithFields(logrus.Fields{
				"rule": cr.rule.Name, "scope_key": scopeKey,
			}).Error("Event incident transition failed, will retry next tick")
			return err
		}
		e.consumedEvents[slot] = true
		if incident != nil {
			metrics.IncidentsOpenedTotal.Inc()
			metrics.IncidentsResolvedTotal.Inc()
			if e.notifier != nil {
				e.notifier.NotifyFired(incident)
			}
			if e.broadcaster != nil {
				e.broadcaster.BroadcastIncident("incident_opened", incident)
				e.broadcaster.BroadcastIncident("incident_resolved", incident)
			}
		}
		return nil
	}

	// An open incident proves the breach was already sustained by fire
	// time, so the streak began no later than FiredAt minus the window.
	// Seeding that keeps a restart from resetting the tracker and
	// spuriously resolving a still-true incident.
	if open != nil && obs.Breached {
		e.window.Prime(cr.rule.ID, scopeKey, open.FiredAt.Add(-cr.rule.Duration()))
	}

	sustained := e.window.Observe(cr.rule.ID, scopeKey, cr.rule.Duration(), obs.Breached, now)

	switch {
	case open == nil && sustained:
		incident, err := e.incidents.Open(ctx, cr.rule, scopeKey, obs, now)
		if err != nil {
			metrics.EvaluationFailuresTotal.Inc()
			e.log.WithError(err).WithFields(logrus.Fields{
				"rule": cr.rule.Name, "scope_key": scopeKey,
			}).Error("Incident open failed, will retry next tick")
			return err
		}
		if incident != nil {
			openIndex[windowKey(cr.rule.ID, scopeKey)] = incident
			metrics.IncidentsOpenedTotal.Inc()
			if e.notifier != nil {
				e.notifier.NotifyFired(incident)
			}
			if e.broadcaster != nil {
				e.broadcaster.BroadcastIncident("incident_opened", incident)
			}
		}

	case open != nil && !sustained:
		// With the streak primed from the open incident, sustained only
		// drops when the condition is observed false.
		resolved, err := e.incidents.Resolve(ctx, open, now)
		if err != nil {
			metrics.EvaluationFailuresTotal.Inc()
			e.log.WithError(err).WithFields(logrus.Fields{
				"rule": cr.rule.Name, "scope_key": scopeKey,
			}).Error("Incident resolve failed, will retry next tick")
			return err
		}
		delete(openIndex, windowKey(cr.rule.ID, scopeKey))
		if resolved {
			metrics.IncidentsResolvedTotal.Inc()
			if e.notifier != nil {
				e.notifier.NotifyResolved(open)
			}
			if e.broadcaster != nil {
				e.broadcaster.BroadcastIncident("incident_resolved", open)
			}
		}
	}
	// open != nil && sustained: no change here, escalation has its own tick.
	// open == nil && !sustained: nothing to do.
	return nil
}

func (e *Engine) updateOpenGauge(ctx context.Context) {
	open, err := e.incidentsDB.ListOpen(ctx)
	if err != nil {
		return
	}
	metrics.IncidentsOpen.Set(float64(len(open)))
}
