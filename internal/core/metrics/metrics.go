// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailwatch_evaluations_total",
		Help: "Number of rule condition evaluations performed.",
	})

	EvaluationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailwatch_evaluation_failures_total",
		Help: "Number of per-slot evaluation failures (fact reads or persistence).",
	})

	IncidentsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailwatch_incidents_open",
		Help: "Number of currently firing incidents.",
	})

	IncidentsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailwatch_incidents_opened_total",
		Help: "Number of incidents opened.",
	})

	IncidentsResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailwatch_incidents_resolved_total",
		Help: "Number of incidents resolved.",
	})

	EscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailwatch_escalations_total",
		Help: "Number of escalation level promotions.",
	}, []string{"level"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailwatch_notifications_total",
		Help: "Notification delivery attempts by channel and outcome.",
	}, []string{"channel", "status"})

	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailwatch_tick_duration_seconds",
		Help:    "Wall-clock duration of engine ticks.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)
