package models

import (
	"database/sql"
	"time"
)

// Scope types a metric sample may be recorded against.
const (
	ScopeNode   = "node"
	ScopeIP     = "ip"
	ScopeGlobal = "global"
)

// GlobalScopeKey is the pseudo-entity used for cluster-wide metrics.
const GlobalScopeKey = "cluster"

// MetricSample is one aggregated time-series point as written by the
// collectors. The engine only ever reads the most recent sample per
// (scope, metric) inside the staleness window.
type MetricSample struct {
	ID         int64     `json:"id" db:"id"`
	ScopeType  string    `json:"scope_type" db:"scope_type"`
	ScopeKey   string    `json:"scope_key" db:"scope_key"`
	Metric     string    `json:"metric" db:"metric"`
	Value      float64   `json:"value" db:"value"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// SignalFact is a boolean fact produced by an external detector, e.g. the
// DNSBL prober marking an IP as listed on a critical-tier blacklist.
type SignalFact struct {
	ID         int64     `json:"id" db:"id"`
	ScopeKey   string    `json:"scope_key" db:"scope_key"`
	Signal     string    `json:"signal" db:"signal"`
	Active     bool      `json:"active" db:"active"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// NodeEvent is a one-shot fact: something happened at a point in time
// (role transition, status change). Events are consumed by the tick that
// observes them and never persist as an ongoing condition.
type NodeEvent struct {
	ID         int64          `json:"id" db:"id"`
	ScopeKey   string         `json:"scope_key" db:"scope_key"`
	Event      string         `json:"event" db:"event"`
	Details    sql.NullString `json:"details" db:"details"`
	OccurredAt time.Time      `json:"occurred_at" db:"occurred_at"`
}
