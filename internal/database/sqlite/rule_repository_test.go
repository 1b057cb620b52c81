package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
)

func TestRuleRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db, testLogger())
	ctx := context.Background()

	rule := &models.AlertRule{
		Name:            "queue-backlog",
		Severity:        models.SeverityWarning,
		Condition:       "queue_size > threshold",
		Threshold:       sql.NullFloat64{Float64: 5000, Valid: true},
		DurationSeconds: 600,
		CooldownSeconds: 1800,
		Channels:        models.ChannelList{"ops-telegram", "ops-email"},
		Enabled:         true,
	}
	require.NoError(t, repo.Create(ctx, rule))
	assert.NotZero(t, rule.ID)
	assert.False(t, rule.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "queue-backlog", got.Name)
	assert.Equal(t, models.ChannelList{"ops-telegram", "ops-email"}, got.Channels)
	require.True(t, got.Threshold.Valid)
	assert.Equal(t, 5000.0, got.Threshold.Float64)

	byName, err := repo.GetByName(ctx, "queue-backlog")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, rule.ID, byName.ID)
}

func TestRuleRepository_GetMissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db, testLogger())
	ctx := context.Background()

	got, err := repo.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	byName, err := repo.GetByName(ctx, "no-such-rule")
	require.NoError(t, err)
	assert.Nil(t, byName)
}

func TestRuleRepository_NameIsUnique(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db, testLogger())

	seedRule(t, repo, "high-cpu")

	dup := &models.AlertRule{
		Name:      "high-cpu",
		Severity:  models.SeverityInfo,
		Condition: "signal:blacklist_warning",
	}
	assert.Error(t, repo.Create(context.Background(), dup))
}

func TestRuleRepository_NullThresholdRoundTrips(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db, testLogger())
	ctx := context.Background()

	rule := &models.AlertRule{
		Name:      "node-offline",
		Severity:  models.SeverityCritical,
		Condition: "signal:node_offline",
		Channels:  models.ChannelList{},
		Enabled:   true,
	}
	require.NoError(t, repo.Create(ctx, rule))

	got, err := repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, got.Threshold.Valid)
}

func TestRuleRepository_ListEnabledFiltersDisabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db, testLogger())
	ctx := context.Background()

	enabled := seedRule(t, repo, "high-cpu")
	disabled := &models.AlertRule{
		Name:      "paused-rule",
		Severity:  models.SeverityInfo,
		Condition: "disk_percent > threshold",
		Threshold: sql.NullFloat64{Float64: 90, Valid: true},
		Enabled:   false,
	}
	require.NoError(t, repo.Create(ctx, disabled))

	active, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, enabled.ID, active[0].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRuleRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db, testLogger())
	ctx := context.Background()

	rule := seedRule(t, repo, "high-cpu")
	created := rule.CreatedAt

	rule.Threshold = sql.NullFloat64{Float64: 90, Valid: true}
	rule.DurationSeconds = 120
	rule.Enabled = false
	require.NoError(t, repo.Update(ctx, rule))

	got, err := repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 90.0, got.Threshold.Float64)
	assert.Equal(t, int64(120), got.DurationSeconds)
	assert.False(t, got.Enabled)
	assert.Equal(t, created.Unix(), got.CreatedAt.Unix(), "creation time never changes")

	missing := *rule
	missing.ID = 9999
	assert.ErrorIs(t, repo.Update(ctx, &missing), sql.ErrNoRows)
}

func TestRuleRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db, testLogger())
	ctx := context.Background()

	rule := seedRule(t, repo, "high-cpu")
	require.NoError(t, repo.Delete(ctx, rule.ID))

	got, err := repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, repo.Delete(ctx, rule.ID), sql.ErrNoRows)
}
