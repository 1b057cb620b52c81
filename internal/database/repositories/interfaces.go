package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
)

// ErrDuplicateFiring is returned by IncidentRepository.Create when a firing
// incident already exists for the same (rule, scope key). The unique index
// on the store is the authority for dedup, not application-level locking.
var ErrDuplicateFiring = errors.New("firing incident already exists for rule and scope")

// RuleRepository manages persisted alert rule definitions.
type RuleRepository interface {
	ListEnabled(ctx context.Context) ([]*models.AlertRule, error)
	List(ctx context.Context) ([]*models.AlertRule, error)
	GetByID(ctx context.Context, id int64) (*models.AlertRule, error)
	GetByName(ctx context.Context, name string) (*models.AlertRule, error)
	Create(ctx context.Context, rule *models.AlertRule) error
	Update(ctx context.Context, rule *models.AlertRule) error
	Delete(ctx context.Context, id int64) error
}

// IncidentRepository persists alert events and their lifecycle mutations.
// All engine writes go through here; each method is a single atomic
// statement so a failed transition leaves no partial state.
type IncidentRepository interface {
	// FindOpen returns the firing incident for (ruleID, scopeKey), or nil.
	FindOpen(ctx context.Context, ruleID int64, scopeKey string) (*models.AlertEvent, error)
	GetByID(ctx context.Context, id string) (*models.AlertEvent, error)
	ListOpen(ctx context.Context) ([]*models.AlertEvent, error)
	List(ctx context.Context, limit, offset int) ([]*models.AlertEvent, error)
	Create(ctx context.Context, event *models.AlertEvent) error
	Close(ctx context.Context, id string, resolvedAt time.Time) error
	// BumpEscalation raises the level only when the incident is still firing
	// and the stored level is below the new one.
	BumpEscalation(ctx context.Context, id string, level int) error
	MarkNotified(ctx context.Context, id string, notified bool) error
	// LastResolvedAt returns the most recent resolution time for the pair,
	// or the zero time when the pair has never resolved.
	LastResolvedAt(ctx context.Context, ruleID int64, scopeKey string) (time.Time, error)
	Acknowledge(ctx context.Context, id, user string, at time.Time) error
	Snooze(ctx context.Context, id string, until time.Time) error
}

// FactRepository is the read side of the metric/signal/event tables the
// collectors write into. The engine never fires on data older than the
// staleness cutoff passed as since.
type FactRepository interface {
	// LatestMetrics returns the newest value per scope key for one metric,
	// restricted to samples recorded at or after since.
	LatestMetrics(ctx context.Context, scopeType, metric string, since time.Time) (map[string]float64, error)
	// ActiveSignals returns scope keys for which the signal is currently set.
	ActiveSignals(ctx context.Context, signal string) (map[string]bool, error)
	// EventsBetween returns one-shot events with since < occurred_at <= until.
	EventsBetween(ctx context.Context, since, until time.Time) ([]*models.NodeEvent, error)

	InsertSample(ctx context.Context, sample *models.MetricSample) error
	SetSignal(ctx context.Context, scopeKey, signal string, active bool, at time.Time) error
	InsertEvent(ctx context.Context, event *models.NodeEvent) error
}
