// Package facts exposes point-in-time truth about the mail cluster to the
// alerting engine: aggregated metric values, boolean detector signals, and
// one-shot events. The engine reads a batched Snapshot per evaluation tick;
// it never talks to collectors or storage directly.
package facts

import (
	"context"
	"time"
)

// MetricKey identifies a metric series family: a metric name at one scope.
type MetricKey struct {
	Scope  string
	Metric string
}

// Snapshot is the batched fact state for one evaluation tick. A metric or
// signal missing from the snapshot evaluates as "no data", never as a breach.
type Snapshot struct {
	TakenAt time.Time
	Metrics map[MetricKey]map[string]float64
	Signals map[string]map[string]bool
	Events  map[string]map[string]bool
}

// Metric returns the value for one entity, reporting absence explicitly.
func (s *Snapshot) Metric(scope, metric, scopeKey string) (float64, bool) {
	values, ok := s.Metrics[MetricKey{Scope: scope, Metric: metric}]
	if !ok {
		return 0, false
	}
	v, ok := values[scopeKey]
	return v, ok
}

// MetricEntities returns every entity with a fresh value for the metric.
func (s *Snapshot) MetricEntities(scope, metric string) map[string]float64 {
	return s.Metrics[MetricKey{Scope: scope, Metric: metric}]
}

// SignalActive reports whether the signal is set for the entity. Absent
// signals are false.
func (s *Snapshot) SignalActive(signal, scopeKey string) bool {
	return s.Signals[signal][scopeKey]
}

// SignalEntities returns every entity with the signal currently active.
func (s *Snapshot) SignalEntities(signal string) map[string]bool {
	return s.Signals[signal]
}

// EventObserved reports whether the event occurred for the entity inside
// this tick's window. Events are not sticky across ticks.
func (s *Snapshot) EventObserved(event, scopeKey string) bool {
	return s.Events[event][scopeKey]
}

// EventEntities returns every entity the event was observed for this tick.
func (s *Snapshot) EventEntities(event string) map[string]bool {
	return s.Events[event]
}

// Provider produces fact snapshots. eventsSince bounds the one-shot event
// window: only events with eventsSince < occurred_at <= now are included.
type Provider interface {
	Snapshot(ctx context.Context, metrics []MetricKey, signals []string, eventsSince, now time.Time) *Snapshot
}
