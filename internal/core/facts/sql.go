package facts

import (
	"context"
	"time"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/repositories"
	"github.com/sirupsen/logrus"
)

// SQLProvider reads facts from the metric/signal/event tables the
// collectors write into. Every read is bounded by queryTimeout and a
// failed read only blanks its own slice of the snapshot: one slow or
// broken series must not stall evaluation of unrelated rules.
type SQLProvider struct {
	repo      repositories.FactRepository
	staleness time.Duration
	timeout   time.Duration
	log       *logrus.Logger
}

func NewSQLProvider(repo repositories.FactRepository, staleness, timeout time.Duration, log *logrus.Logger) *SQLProvider {
	if staleness <= 0 {
		staleness = 2 * time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SQLProvider{repo: repo, staleness: staleness, timeout: timeout, log: log}
}

func (p *SQLProvider) Snapshot(ctx context.Context, metrics []MetricKey, signals []string, eventsSince, now time.Time) *Snapshot {
	snap := &Snapshot{
		TakenAt: now,
		Metrics: make(map[MetricKey]map[string]float64, len(metrics)),
		Signals: make(map[string]map[string]bool, len(signals)),
		Events:  make(map[string]map[string]bool),
	}

	cutoff := now.Add(-p.staleness)

	for _, key := range metrics {
		values, err := p.fetchMetric(ctx, key, cutoff)
		if err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"scope": key.Scope, "metric": key.Metric,
			}).Warn("Fact read failed, metric treated as absent")
			continue
		}
		snap.Metrics[key] = values
	}

	for _, signal := range signals {
		active, err := p.fetchSignal(ctx, signal)
		if err != nil {
			p.log.WithError(err).WithField("signal", signal).
				Warn("Fact read failed, signal treated as absent")
			continue
		}
		snap.Signals[signal] = active
	}

	events, err := p.fetchEvents(ctx, eventsSince, now)
	if err != nil {
		p.log.WithError(err).Warn("Fact read failed, events treated as absent")
	} else {
		snap.Events = events
	}

	return snap
}

func (p *SQLProvider) fetchMetric(ctx context.Context, key MetricKey, cutoff time.Time) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.repo.LatestMetrics(ctx, key.Scope, key.Metric, cutoff)
}

func (p *SQLProvider) fetchSignal(ctx context.Context, signal string) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.repo.ActiveSignals(ctx, signal)
}

func (p *SQLProvider) fetchEvents(ctx context.Context, since, until time.Time) (map[string]map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.repo.EventsBetween(ctx, since, until)
	if err != nil {
		return nil, err
	}

	events := make(map[string]map[string]bool)
	for _, ev := range rows {
		if events[ev.Event] == nil {
			events[ev.Event] = make(map[string]bool)
		}
		events[ev.Event][ev.ScopeKey] = true
	}
	return events, nil
}
