package alerting

import (
	"fmt"
	"strings"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
)

// ConditionKind discriminates the three condition variants.
type ConditionKind string

const (
	KindThreshold ConditionKind = "threshold"
	KindSignal    ConditionKind = "signal"
	KindEvent     ConditionKind = "event"
)

// Comparator is the operator of a threshold condition.
type Comparator string

const (
	CmpGreater        Comparator = ">"
	CmpGreaterOrEqual Comparator = ">="
	CmpLess           Comparator = "<"
	CmpLessOrEqual    Comparator = "<="
	CmpEqual          Comparator = "=="
	CmpNotEqual       Comparator = "!="
)

// Condition is the parsed form of a rule's condition string. Parsing happens
// once when rules are loaded, never per tick.
//
// Grammar:
//
//	[scope:]<metric> <cmp> threshold    e.g. "cpu_percent > threshold"
//	signal:<name>                       e.g. "signal:blacklist_critical"
//	event:<name>                        e.g. "event:node_status_changed"
//
// Threshold scope defaults to node; "ip:" and "global:" prefixes override.
// Signals are always per-IP facts; events carry their own scope key.
type Condition struct {
	Kind       ConditionKind
	Metric     string
	Comparator Comparator
	Scope      string
	Signal     string
	Event      string
}

// ParseCondition parses a condition DSL string into its tagged variant.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Condition{}, fmt.Errorf("condition is empty")
	}

	if name, ok := strings.CutPrefix(s, "signal:"); ok {
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, " \t") {
			return Condition{}, fmt.Errorf("invalid signal condition %q", s)
		}
		return Condition{Kind: KindSignal, Signal: name}, nil
	}

	if name, ok := strings.CutPrefix(s, "event:"); ok {
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, " \t") {
			return Condition{}, fmt.Errorf("invalid event condition %q", s)
		}
		return Condition{Kind: KindEvent, Event: name}, nil
	}

	fields := strings.Fields(s)
	if len(fields) != 3 {
		return Condition{}, fmt.Errorf("invalid condition %q: want \"<metric> <cmp> threshold\"", s)
	}
	if fields[2] != "threshold" {
		return Condition{}, fmt.Errorf("invalid condition %q: right-hand side must be \"threshold\"", s)
	}

	cmp := Comparator(fields[1])
	switch cmp {
	case CmpGreater, CmpGreaterOrEqual, CmpLess, CmpLessOrEqual, CmpEqual, CmpNotEqual:
	default:
		return Condition{}, fmt.Errorf("invalid comparator %q in condition %q", fields[1], s)
	}

	scope := models.ScopeNode
	metric := fields[0]
	if prefix, rest, ok := strings.Cut(metric, ":"); ok {
		switch prefix {
		case models.ScopeNode, models.ScopeIP, models.ScopeGlobal:
			scope = prefix
			metric = rest
		default:
			return Condition{}, fmt.Errorf("invalid scope %q in condition %q", prefix, s)
		}
	}
	if metric == "" {
		return Condition{}, fmt.Errorf("invalid condition %q: missing metric name", s)
	}

	return Condition{Kind: KindThreshold, Metric: metric, Comparator: cmp, Scope: scope}, nil
}

// Compare applies the comparator to a metric value and threshold.
func (c Condition) Compare(value, threshold float64) bool {
	switch c.Comparator {
	case CmpGreater:
		return value > threshold
	case CmpGreaterOrEqual:
		return value >= threshold
	case CmpLess:
		return value < threshold
	case CmpLessOrEqual:
		return value <= threshold
	case CmpEqual:
		return value == threshold
	case CmpNotEqual:
		return value != threshold
	}
	return false
}

// ValidateRule checks that a rule's condition parses and that the threshold
// is present exactly when the condition kind needs one.
func ValidateRule(rule *models.AlertRule) error {
	cond, err := ParseCondition(rule.Condition)
	if err != nil {
		return err
	}

	if cond.Kind == KindThreshold && !rule.Threshold.Valid {
		return fmt.Errorf("rule %q: threshold condition requires a threshold value", rule.Name)
	}
	if cond.Kind != KindThreshold && rule.Threshold.Valid {
		return fmt.Errorf("rule %q: %s condition must not carry a threshold", rule.Name, cond.Kind)
	}
	if !models.ValidSeverity(rule.Severity) {
		return fmt.Errorf("rule %q: unknown severity %q", rule.Name, rule.Severity)
	}
	return nil
}
