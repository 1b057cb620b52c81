package alerting

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/core/facts"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/repositories"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type fakeRuleRepo struct {
	rules []*models.AlertRule
}

func (r *fakeRuleRepo) ListEnabled(ctx context.Context) ([]*models.AlertRule, error) {
	var out []*models.AlertRule
	for _, rule := range r.rules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *fakeRuleRepo) List(ctx context.Context) ([]*models.AlertRule, error) {
	return r.rules, nil
}

func (r *fakeRuleRepo) GetByID(ctx context.Context, id int64) (*models.AlertRule, error) {
	for _, rule := range r.rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return nil, nil
}

func (r *fakeRuleRepo) GetByName(ctx context.Context, name string) (*models.AlertRule, error) {
	for _, rule := range r.rules {
		if rule.Name == name {
			return rule, nil
		}
	}
	return nil, nil
}

func (r *fakeRuleRepo) Create(ctx context.Context, rule *models.AlertRule) error {
	rule.ID = int64(len(r.rules) + 1)
	r.rules = append(r.rules, rule)
	return nil
}

func (r *fakeRuleRepo) Update(ctx context.Context, rule *models.AlertRule) error {
	for i, existing := range r.rules {
		if existing.ID == rule.ID {
			r.rules[i] = rule
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *fakeRuleRepo) Delete(ctx context.Context, id int64) error {
	for i, existing := range r.rules {
		if existing.ID == id {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

// fakeIncidentRepo mirrors the SQLite repository's transition semantics,
// including the one-firing-per-pair constraint and CAS-style updates.
type fakeIncidentRepo struct {
	mu     sync.Mutex
	events []*models.AlertEvent
	nextID int

	// failCreates makes the next N Create calls fail, simulating a
	// transient store outage.
	failCreates int
}

func (r *fakeIncidentRepo) FindOpen(ctx context.Context, ruleID int64, scopeKey string) (*models.AlertEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findOpenLocked(ruleID, scopeKey), nil
}

func (r *fakeIncidentRepo) findOpenLocked(ruleID int64, scopeKey string) *models.AlertEvent {
	for _, e := range r.events {
		if e.RuleID == ruleID && e.ScopeKey == scopeKey && e.Status == models.StatusFiring {
			return e
		}
	}
	return nil
}

func (r *fakeIncidentRepo) GetByID(ctx context.Context, id string) (*models.AlertEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (r *fakeIncidentRepo) ListOpen(ctx context.Context) ([]*models.AlertEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AlertEvent
	for _, e := range r.events {
		if e.Status == models.StatusFiring {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeIncidentRepo) List(ctx context.Context, limit, offset int) ([]*models.AlertEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.AlertEvent(nil), r.events...), nil
}

func (r *fakeIncidentRepo) Create(ctx context.Context, event *models.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreates > 0 {
		r.failCreates--
		return fmt.Errorf("store unavailable")
	}
	if r.findOpenLocked(event.RuleID, event.ScopeKey) != nil {
		return repositories.ErrDuplicateFiring
	}
	if event.ID == "" {
		r.nextID++
		event.ID = fmt.Sprintf("evt-%d", r.nextID)
	}
	if event.Status == "" {
		event.Status = models.StatusFiring
	}
	r.events = append(r.events, event)
	return nil
}

func (r *fakeIncidentRepo) Close(ctx context.Context, id string, resolvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id && e.Status == models.StatusFiring {
			e.Status = models.StatusResolved
			e.ResolvedAt = sql.NullTime{Time: resolvedAt, Valid: true}
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *fakeIncidentRepo) BumpEscalation(ctx context.Context, id string, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id && e.Status == models.StatusFiring && e.EscalationLevel < level {
			e.EscalationLevel = level
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *fakeIncidentRepo) MarkNotified(ctx context.Context, id string, notified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			e.Notified = notified
			return nil
		}
	}
	return nil
}

func (r *fakeIncidentRepo) LastResolvedAt(ctx context.Context, ruleID int64, scopeKey string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest time.Time
	for _, e := range r.events {
		if e.RuleID == ruleID && e.ScopeKey == scopeKey && e.Status == models.StatusResolved &&
			e.ResolvedAt.Valid && e.ResolvedAt.Time.After(latest) {
			latest = e.ResolvedAt.Time
		}
	}
	return latest, nil
}

func (r *fakeIncidentRepo) Acknowledge(ctx context.Context, id, user string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id && !e.AcknowledgedBy.Valid {
			e.AcknowledgedBy = sql.NullString{String: user, Valid: true}
			e.AcknowledgedAt = sql.NullTime{Time: at, Valid: true}
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *fakeIncidentRepo) Snooze(ctx context.Context, id string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id && e.Status == models.StatusFiring {
			e.SnoozedUntil = sql.NullTime{Time: until, Valid: true}
			return nil
		}
	}
	return sql.ErrNoRows
}

// staticProvider serves whatever metric and signal state the test currently
// holds. Events carry occurrence times and honor the (eventsSince, now]
// scan window, matching the SQL provider.
type staticProvider struct {
	snap   *facts.Snapshot
	events []eventOccurrence
}

type eventOccurrence struct {
	event    string
	scopeKey string
	at       time.Time
}

func (p *staticProvider) Snapshot(ctx context.Context, metrics []facts.MetricKey, signals []string, eventsSince, now time.Time) *facts.Snapshot {
	var snap facts.Snapshot
	if p.snap != nil {
		snap = *p.snap
	}
	snap.TakenAt = now
	snap.Events = nil
	for _, occ := range p.events {
		if !occ.at.After(eventsSince) || occ.at.After(now) {
			continue
		}
		if snap.Events == nil {
			snap.Events = make(map[string]map[string]bool)
		}
		if snap.Events[occ.event] == nil {
			snap.Events[occ.event] = make(map[string]bool)
		}
		snap.Events[occ.event][occ.scopeKey] = true
	}
	return &snap
}

func (p *staticProvider) setMetric(scope, metric, scopeKey string, value float64) {
	if p.snap == nil {
		p.snap = &facts.Snapshot{}
	}
	if p.snap.Metrics == nil {
		p.snap.Metrics = make(map[facts.MetricKey]map[string]float64)
	}
	key := facts.MetricKey{Scope: scope, Metric: metric}
	if p.snap.Metrics[key] == nil {
		p.snap.Metrics[key] = make(map[string]float64)
	}
	p.snap.Metrics[key][scopeKey] = value
}

func (p *staticProvider) clearMetric(scope, metric, scopeKey string) {
	if p.snap == nil || p.snap.Metrics == nil {
		return
	}
	delete(p.snap.Metrics[facts.MetricKey{Scope: scope, Metric: metric}], scopeKey)
}

func (p *staticProvider) setSignal(signal, scopeKey string, active bool) {
	if p.snap == nil {
		p.snap = &facts.Snapshot{}
	}
	if p.snap.Signals == nil {
		p.snap.Signals = make(map[string]map[string]bool)
	}
	if p.snap.Signals[signal] == nil {
		p.snap.Signals[signal] = make(map[string]bool)
	}
	if active {
		p.snap.Signals[signal][scopeKey] = true
	} else {
		delete(p.snap.Signals[signal], scopeKey)
	}
}

func (p *staticProvider) setEvent(event, scopeKey string, at time.Time) {
	p.events = append(p.events, eventOccurrence{event: event, scopeKey: scopeKey, at: at})
}

type recordingNotifier struct {
	mu        sync.Mutex
	fired     []*models.AlertEvent
	escalated []int
	resolved  []*models.AlertEvent
}

func (n *recordingNotifier) NotifyFired(incident *models.AlertEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fired = append(n.fired, incident)
}

func (n *recordingNotifier) NotifyEscalated(incident *models.AlertEvent, level int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escalated = append(n.escalated, level)
}

func (n *recordingNotifier) NotifyResolved(incident *models.AlertEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, incident)
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	kinds []string
}

func (b *recordingBroadcaster) BroadcastIncident(kind string, incident *models.AlertEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kinds = append(b.kinds, kind)
}
