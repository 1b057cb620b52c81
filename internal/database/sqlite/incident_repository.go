package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/repositories"
	"github.com/sirupsen/logrus"
)

type IncidentRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewIncidentRepository(db *sqlx.DB, log *logrus.Logger) *IncidentRepository {
	return &IncidentRepository{db: db, log: log}
}

const incidentColumns = `id, rule_id, rule_name, severity, scope_key, status, message, details,
		fired_at, resolved_at, escalation_level, acknowledged_by, acknowledged_at,
		snoozed_until, notified`

func (r *IncidentRepository) FindOpen(ctx context.Context, ruleID int64, scopeKey string) (*models.AlertEvent, error) {
	query := `SELECT ` + incidentColumns + ` FROM alert_events
			WHERE rule_id = ? AND scope_key = ? AND status = 'firing'`

	var event models.AlertEvent
	if err := r.db.GetContext(ctx, &event, query, ruleID, scopeKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.WithError(err).WithFields(logrus.Fields{"rule_id": ruleID, "scope_key": scopeKey}).
			Error("Failed to find open incident")
		return nil, fmt.Errorf("failed to find open incident: %w", err)
	}
	return &event, nil
}

func (r *IncidentRepository) GetByID(ctx context.Context, id string) (*models.AlertEvent, error) {
	query := `SELECT ` + incidentColumns + ` FROM alert_events WHERE id = ?`

	var event models.AlertEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return &event, nil
}

func (r *IncidentRepository) ListOpen(ctx context.Context) ([]*models.AlertEvent, error) {
	query := `SELECT ` + incidentColumns + ` FROM alert_events
			WHERE status = 'firing' ORDER BY fired_at`

	var events []*models.AlertEvent
	if err := r.db.SelectContext(ctx, &events, query); err != nil {
		r.log.WithError(err).Error("Failed to list open incidents")
		return nil, fmt.Errorf("failed to list open incidents: %w", err)
	}
	return events, nil
}

func (r *IncidentRepository) List(ctx context.Context, limit, offset int) ([]*models.AlertEvent, error) {
	query := `SELECT ` + incidentColumns + ` FROM alert_events
			ORDER BY fired_at DESC LIMIT ? OFFSET ?`

	var events []*models.AlertEvent
	if err := r.db.SelectContext(ctx, &events, query, limit, offset); err != nil {
		r.log.WithError(err).Error("Failed to list incidents")
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	return events, nil
}

func (r *IncidentRepository) Create(ctx context.Context, event *models.AlertEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Status == "" {
		event.Status = models.StatusFiring
	}

	query := `INSERT INTO alert_events (id, rule_id, rule_name, severity, scope_key, status,
			message, details, fired_at, escalation_level, notified)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, event.ID, event.RuleID, event.RuleName,
		event.Severity, event.ScopeKey, event.Status, event.Message, event.Details,
		event.FiredAt, event.EscalationLevel, event.Notified)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return repositories.ErrDuplicateFiring
		}
		r.log.WithError(err).WithFields(logrus.Fields{
			"rule_id": event.RuleID, "scope_key": event.ScopeKey,
		}).Error("Failed to create incident")
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

func (r *IncidentRepository) Close(ctx context.Context, id string, resolvedAt time.Time) error {
	query := `UPDATE alert_events SET status = 'resolved', resolved_at = ?
			WHERE id = ? AND status = 'firing'`

	res, err := r.db.ExecContext(ctx, query, resolvedAt, id)
	if err != nil {
		r.log.WithError(err).WithField("id", id).Error("Failed to close incident")
		return fmt.Errorf("failed to close incident: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check close result: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// BumpEscalation only ever raises the level, and only while firing. A stale
// read racing with a close or an earlier bump becomes a harmless no-op.
func (r *IncidentRepository) BumpEscalation(ctx context.Context, id string, level int) error {
	query := `UPDATE alert_events SET escalation_level = ?
			WHERE id = ? AND status = 'firing' AND escalation_level < ?`

	res, err := r.db.ExecContext(ctx, query, level, id, level)
	if err != nil {
		r.log.WithError(err).WithField("id", id).Error("Failed to bump escalation")
		return fmt.Errorf("failed to bump escalation: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check escalation result: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *IncidentRepository) MarkNotified(ctx context.Context, id string, notified bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE alert_events SET notified = ? WHERE id = ?`, notified, id)
	if err != nil {
		r.log.WithError(err).WithField("id", id).Error("Failed to mark incident notified")
		return fmt.Errorf("failed to mark incident notified: %w", err)
	}
	return nil
}

func (r *IncidentRepository) LastResolvedAt(ctx context.Context, ruleID int64, scopeKey string) (time.Time, error) {
	query := `SELECT resolved_at FROM alert_events
			WHERE rule_id = ? AND scope_key = ? AND status = 'resolved'
			ORDER BY resolved_at DESC LIMIT 1`

	var resolved sql.NullTime
	if err := r.db.GetContext(ctx, &resolved, query, ruleID, scopeKey); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get last resolution: %w", err)
	}
	if !resolved.Valid {
		return time.Time{}, nil
	}
	return resolved.Time, nil
}

func (r *IncidentRepository) Acknowledge(ctx context.Context, id, user string, at time.Time) error {
	query := `UPDATE alert_events SET acknowledged_by = ?, acknowledged_at = ?
			WHERE id = ? AND acknowledged_by IS NULL`

	res, err := r.db.ExecContext(ctx, query, user, at, id)
	if err != nil {
		r.log.WithError(err).WithField("id", id).Error("Failed to acknowledge incident")
		return fmt.Errorf("failed to acknowledge incident: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check acknowledge result: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *IncidentRepository) Snooze(ctx context.Context, id string, until time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alert_events SET snoozed_until = ? WHERE id = ? AND status = 'firing'`, until, id)
	if err != nil {
		r.log.WithError(err).WithField("id", id).Error("Failed to snooze incident")
		return fmt.Errorf("failed to snooze incident: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check snooze result: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
