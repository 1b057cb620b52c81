package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/sirupsen/logrus"
)

type RuleRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewRuleRepository(db *sqlx.DB, log *logrus.Logger) *RuleRepository {
	return &RuleRepository{db: db, log: log}
}

const ruleColumns = `id, name, severity, condition, threshold, duration_seconds,
		cooldown_seconds, channels, enabled, created_at, updated_at`

func (r *RuleRepository) ListEnabled(ctx context.Context) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE enabled = 1 ORDER BY id`

	var rules []*models.AlertRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		r.log.WithError(err).Error("Failed to list enabled alert rules")
		return nil, fmt.Errorf("failed to list enabled alert rules: %w", err)
	}
	return rules, nil
}

func (r *RuleRepository) List(ctx context.Context) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules ORDER BY id`

	var rules []*models.AlertRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		r.log.WithError(err).Error("Failed to list alert rules")
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	return rules, nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE id = ?`

	var rule models.AlertRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.WithError(err).WithField("id", id).Error("Failed to get alert rule")
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}
	return &rule, nil
}

func (r *RuleRepository) GetByName(ctx context.Context, name string) (*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE name = ?`

	var rule models.AlertRule
	if err := r.db.GetContext(ctx, &rule, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.WithError(err).WithField("name", name).Error("Failed to get alert rule")
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}
	return &rule, nil
}

func (r *RuleRepository) Create(ctx context.Context, rule *models.AlertRule) error {
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `INSERT INTO alert_rules (name, severity, condition, threshold, duration_seconds,
			cooldown_seconds, channels, enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, rule.Name, rule.Severity, rule.Condition,
		rule.Threshold, rule.DurationSeconds, rule.CooldownSeconds, rule.Channels,
		rule.Enabled, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		r.log.WithError(err).WithField("name", rule.Name).Error("Failed to create alert rule")
		return fmt.Errorf("failed to create alert rule: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get alert rule id: %w", err)
	}
	rule.ID = id
	return nil
}

func (r *RuleRepository) Update(ctx context.Context, rule *models.AlertRule) error {
	rule.UpdatedAt = time.Now().UTC()

	query := `UPDATE alert_rules SET name = ?, severity = ?, condition = ?, threshold = ?,
			duration_seconds = ?, cooldown_seconds = ?, channels = ?, enabled = ?, updated_at = ?
			WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, rule.Name, rule.Severity, rule.Condition,
		rule.Threshold, rule.DurationSeconds, rule.CooldownSeconds, rule.Channels,
		rule.Enabled, rule.UpdatedAt, rule.ID)
	if err != nil {
		r.log.WithError(err).WithField("id", rule.ID).Error("Failed to update alert rule")
		return fmt.Errorf("failed to update alert rule: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		r.log.WithError(err).WithField("id", id).Error("Failed to delete alert rule")
		return fmt.Errorf("failed to delete alert rule: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
