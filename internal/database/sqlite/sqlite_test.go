package sqlite

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE alert_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    severity TEXT NOT NULL CHECK (severity IN ('critical', 'warning', 'info')),
    condition TEXT NOT NULL,
    threshold REAL,
    duration_seconds INTEGER NOT NULL DEFAULT 0,
    cooldown_seconds INTEGER NOT NULL DEFAULT 1800,
    channels TEXT NOT NULL DEFAULT '[]',
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE alert_events (
    id TEXT PRIMARY KEY,
    rule_id INTEGER NOT NULL REFERENCES alert_rules(id) ON DELETE CASCADE,
    rule_name TEXT NOT NULL,
    severity TEXT NOT NULL,
    scope_key TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('firing', 'resolved')),
    message TEXT NOT NULL DEFAULT '',
    details TEXT,
    fired_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP,
    escalation_level INTEGER NOT NULL DEFAULT 0,
    acknowledged_by TEXT,
    acknowledged_at TIMESTAMP,
    snoozed_until TIMESTAMP,
    notified INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX idx_alert_events_one_firing
    ON alert_events(rule_id, scope_key) WHERE status = 'firing';

CREATE TABLE metric_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    scope_type TEXT NOT NULL CHECK (scope_type IN ('node', 'ip', 'global')),
    scope_key TEXT NOT NULL,
    metric TEXT NOT NULL,
    value REAL NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);

CREATE TABLE signal_facts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    scope_key TEXT NOT NULL,
    signal TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 0,
    recorded_at TIMESTAMP NOT NULL,
    UNIQUE (scope_key, signal)
);

CREATE TABLE node_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    scope_key TEXT NOT NULL,
    event TEXT NOT NULL,
    details TEXT,
    occurred_at TIMESTAMP NOT NULL
);
`

// setupTestDB opens an in-memory database with the production schema. A
// single connection is forced because each new connection to ":memory:"
// would otherwise get its own empty database.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err, "Failed to open test database")
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err, "Failed to create test schema")

	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}
