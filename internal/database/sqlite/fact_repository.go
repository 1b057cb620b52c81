package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/sirupsen/logrus"
)

type FactRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewFactRepository(db *sqlx.DB, log *logrus.Logger) *FactRepository {
	return &FactRepository{db: db, log: log}
}

func (r *FactRepository) LatestMetrics(ctx context.Context, scopeType, metric string, since time.Time) (map[string]float64, error) {
	// Newest sample per scope key inside the staleness window.
	query := `SELECT s.scope_key, s.value FROM metric_samples s
			JOIN (
				SELECT scope_key, MAX(recorded_at) AS recorded_at
				FROM metric_samples
				WHERE scope_type = ? AND metric = ? AND recorded_at >= ?
				GROUP BY scope_key
			) latest ON s.scope_key = latest.scope_key AND s.recorded_at = latest.recorded_at
			WHERE s.scope_type = ? AND s.metric = ?`

	rows, err := r.db.QueryxContext(ctx, query, scopeType, metric, since, scopeType, metric)
	if err != nil {
		r.log.WithError(err).WithField("metric", metric).Error("Failed to query latest metrics")
		return nil, fmt.Errorf("failed to query latest metrics: %w", err)
	}
	defer rows.Close()

	values := make(map[string]float64)
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		values[key] = value
	}
	return values, rows.Err()
}

func (r *FactRepository) ActiveSignals(ctx context.Context, signal string) (map[string]bool, error) {
	query := `SELECT scope_key FROM signal_facts WHERE signal = ? AND active = 1`

	var keys []string
	if err := r.db.SelectContext(ctx, &keys, query, signal); err != nil {
		r.log.WithError(err).WithField("signal", signal).Error("Failed to query active signals")
		return nil, fmt.Errorf("failed to query active signals: %w", err)
	}

	active := make(map[string]bool, len(keys))
	for _, k := range keys {
		active[k] = true
	}
	return active, nil
}

func (r *FactRepository) EventsBetween(ctx context.Context, since, until time.Time) ([]*models.NodeEvent, error) {
	query := `SELECT id, scope_key, event, details, occurred_at FROM node_events
			WHERE occurred_at > ? AND occurred_at <= ? ORDER BY occurred_at`

	var events []*models.NodeEvent
	if err := r.db.SelectContext(ctx, &events, query, since, until); err != nil {
		r.log.WithError(err).Error("Failed to query node events")
		return nil, fmt.Errorf("failed to query node events: %w", err)
	}
	return events, nil
}

func (r *FactRepository) InsertSample(ctx context.Context, sample *models.MetricSample) error {
	query := `INSERT INTO metric_samples (scope_type, scope_key, metric, value, recorded_at)
			VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, sample.ScopeType, sample.ScopeKey,
		sample.Metric, sample.Value, sample.RecordedAt)
	if err != nil {
		r.log.WithError(err).WithField("metric", sample.Metric).Error("Failed to insert metric sample")
		return fmt.Errorf("failed to insert metric sample: %w", err)
	}
	return nil
}

func (r *FactRepository) SetSignal(ctx context.Context, scopeKey, signal string, active bool, at time.Time) error {
	query := `INSERT INTO signal_facts (scope_key, signal, active, recorded_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(scope_key, signal) DO UPDATE SET active = excluded.active,
				recorded_at = excluded.recorded_at`

	_, err := r.db.ExecContext(ctx, query, scopeKey, signal, active, at)
	if err != nil {
		r.log.WithError(err).WithField("signal", signal).Error("Failed to set signal fact")
		return fmt.Errorf("failed to set signal fact: %w", err)
	}
	return nil
}

func (r *FactRepository) InsertEvent(ctx context.Context, event *models.NodeEvent) error {
	query := `INSERT INTO node_events (scope_key, event, details, occurred_at)
			VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, event.ScopeKey, event.Event, event.Details, event.OccurredAt)
	if err != nil {
		r.log.WithError(err).WithField("event", event.Event).Error("Failed to insert node event")
		return fmt.Errorf("failed to insert node event: %w", err)
	}
	return nil
}
