package alerting

import (
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/core/facts"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
)

// Observation is the result of checking one rule condition against one
// entity. HasValue is only set for threshold conditions with fresh data.
type Observation struct {
	Breached bool
	Value    float64
	HasValue bool
}

// Observe evaluates a parsed condition for one entity against the tick's
// fact snapshot. Pure; missing data never counts as a breach.
func Observe(cond Condition, rule *models.AlertRule, snap *facts.Snapshot, scopeKey string) Observation {
	switch cond.Kind {
	case KindThreshold:
		value, ok := snap.Metric(cond.Scope, cond.Metric, scopeKey)
		if !ok || !rule.Threshold.Valid {
			return Observation{}
		}
		return Observation{
			Breached: cond.Compare(value, rule.Threshold.Float64),
			Value:    value,
			HasValue: true,
		}
	case KindSignal:
		return Observation{Breached: snap.SignalActive(cond.Signal, scopeKey)}
	case KindEvent:
		return Observation{Breached: snap.EventObserved(cond.Event, scopeKey)}
	}
	return Observation{}
}

// EntitiesFor returns the entities the snapshot has data for under this
// condition. The engine unions these with entities holding open incidents,
// so an entity that stops reporting a signal still gets its incident
// resolved.
func EntitiesFor(cond Condition, snap *facts.Snapshot) []string {
	switch cond.Kind {
	case KindThreshold:
		values := snap.MetricEntities(cond.Scope, cond.Metric)
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		return keys
	case KindSignal:
		active := snap.SignalEntities(cond.Signal)
		keys := make([]string, 0, len(active))
		for k := range active {
			keys = append(keys, k)
		}
		return keys
	case KindEvent:
		observed := snap.EventEntities(cond.Event)
		keys := make([]string, 0, len(observed))
		for k := range observed {
			keys = append(keys, k)
		}
		return keys
	}
	return nil
}
