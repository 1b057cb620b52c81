package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Severity levels for alert rules and the incidents they open.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Incident statuses.
const (
	StatusFiring   = "firing"
	StatusResolved = "resolved"
)

// ChannelList is a JSON-encoded ordered set of notification channel ids.
type ChannelList []string

func (c ChannelList) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (c *ChannelList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), c)
	case []byte:
		return json.Unmarshal(v, c)
	default:
		return fmt.Errorf("cannot scan %T into ChannelList", src)
	}
}

// AlertRule is an operator-editable alerting rule. Condition holds the raw
// DSL string ("cpu_percent > threshold", "signal:blacklist_critical",
// "event:node_status_changed"); it is parsed once at load time, not per tick.
type AlertRule struct {
	ID              int64           `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Severity        string          `json:"severity" db:"severity"`
	Condition       string          `json:"condition" db:"condition"`
	Threshold       sql.NullFloat64 `json:"threshold" db:"threshold"`
	DurationSeconds int64           `json:"duration_seconds" db:"duration_seconds"`
	CooldownSeconds int64           `json:"cooldown_seconds" db:"cooldown_seconds"`
	Channels        ChannelList     `json:"channels" db:"channels"`
	Enabled         bool            `json:"enabled" db:"enabled"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Duration returns the sustain window; zero means fire immediately.
func (r *AlertRule) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// Cooldown returns the post-resolution quiet period for this rule.
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// AlertRuleView is the wire shape of a rule, with the nullable threshold
// flattened to a pointer and seconds columns rendered as duration strings.
type AlertRuleView struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Severity  string   `json:"severity"`
	Condition string   `json:"condition"`
	Threshold *float64 `json:"threshold,omitempty"`
	Duration  string   `json:"duration"`
	Cooldown  string   `json:"cooldown"`
	Channels  []string `json:"channels"`
	Enabled   bool     `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View flattens the rule into its API representation.
func (r *AlertRule) View() AlertRuleView {
	v := AlertRuleView{
		ID:        r.ID,
		Name:      r.Name,
		Severity:  r.Severity,
		Condition: r.Condition,
		Duration:  r.Duration().String(),
		Cooldown:  r.Cooldown().String(),
		Channels:  r.Channels,
		Enabled:   r.Enabled,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Threshold.Valid {
		f := r.Threshold.Float64
		v.Threshold = &f
	}
	return v
}

// AlertEvent is one open-or-resolved incident: a single occurrence of a rule
// breaching for one entity. At most one firing event may exist per
// (rule_id, scope_key); the store enforces this with a partial unique index.
type AlertEvent struct {
	ID              string         `json:"id" db:"id"`
	RuleID          int64          `json:"rule_id" db:"rule_id"`
	RuleName        string         `json:"rule_name" db:"rule_name"`
	Severity        string         `json:"severity" db:"severity"`
	ScopeKey        string         `json:"scope_key" db:"scope_key"`
	Status          string         `json:"status" db:"status"`
	Message         string         `json:"message" db:"message"`
	Details         sql.NullString `json:"details" db:"details"`
	FiredAt         time.Time      `json:"fired_at" db:"fired_at"`
	ResolvedAt      sql.NullTime   `json:"resolved_at" db:"resolved_at"`
	EscalationLevel int            `json:"escalation_level" db:"escalation_level"`
	AcknowledgedBy  sql.NullString `json:"acknowledged_by" db:"acknowledged_by"`
	AcknowledgedAt  sql.NullTime   `json:"acknowledged_at" db:"acknowledged_at"`
	SnoozedUntil    sql.NullTime   `json:"snoozed_until" db:"snoozed_until"`
	Notified        bool           `json:"notified" db:"notified"`
}

// Acknowledged reports whether an operator has taken ownership.
func (e *AlertEvent) Acknowledged() bool {
	return e.AcknowledgedBy.Valid && e.AcknowledgedBy.String != ""
}

// Snoozed reports whether escalation is suppressed at the given instant.
func (e *AlertEvent) Snoozed(now time.Time) bool {
	return e.SnoozedUntil.Valid && e.SnoozedUntil.Time.After(now)
}

// AlertEventView is the wire shape of an incident for API responses and
// WebSocket broadcasts, with nullable columns flattened to pointers.
type AlertEventView struct {
	ID              string          `json:"id"`
	RuleID          int64           `json:"rule_id"`
	RuleName        string          `json:"rule_name"`
	Severity        string          `json:"severity"`
	ScopeKey        string          `json:"scope_key"`
	Status          string          `json:"status"`
	Message         string          `json:"message"`
	Details         json.RawMessage `json:"details,omitempty"`
	FiredAt         time.Time       `json:"fired_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	EscalationLevel int             `json:"escalation_level"`
	AcknowledgedBy  *string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time      `json:"acknowledged_at,omitempty"`
	SnoozedUntil    *time.Time      `json:"snoozed_until,omitempty"`
	Notified        bool            `json:"notified"`
}

// View flattens the event into its API representation.
func (e *AlertEvent) View() AlertEventView {
	v := AlertEventView{
		ID:              e.ID,
		RuleID:          e.RuleID,
		RuleName:        e.RuleName,
		Severity:        e.Severity,
		ScopeKey:        e.ScopeKey,
		Status:          e.Status,
		Message:         e.Message,
		FiredAt:         e.FiredAt,
		EscalationLevel: e.EscalationLevel,
		Notified:        e.Notified,
	}
	if e.Details.Valid {
		v.Details = json.RawMessage(e.Details.String)
	}
	if e.ResolvedAt.Valid {
		t := e.ResolvedAt.Time
		v.ResolvedAt = &t
	}
	if e.AcknowledgedBy.Valid {
		s := e.AcknowledgedBy.String
		v.AcknowledgedBy = &s
	}
	if e.AcknowledgedAt.Valid {
		t := e.AcknowledgedAt.Time
		v.AcknowledgedAt = &t
	}
	if e.SnoozedUntil.Valid {
		t := e.SnoozedUntil.Time
		v.SnoozedUntil = &t
	}
	return v
}

// ValidSeverity reports whether s is one of the known severity levels.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}
