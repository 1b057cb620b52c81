package alerting

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/repositories"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Name      string   `yaml:"name"`
	Severity  string   `yaml:"severity"`
	Condition string   `yaml:"condition"`
	Threshold *float64 `yaml:"threshold"`
	Duration  string   `yaml:"duration"`
	Cooldown  string   `yaml:"cooldown"`
	Channels  []string `yaml:"channels"`
	Enabled   *bool    `yaml:"enabled"`
}

// LoadRuleFiles reads rule definitions from every .yaml/.yml file in dir
// and upserts them by name. Invalid entries are logged and skipped so one
// bad rule does not block the rest of the file.
func LoadRuleFiles(ctx context.Context, dir string, repo repositories.RuleRepository, log *logrus.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read rule dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.WithError(err).WithField("file", path).Error("Failed to read rule file")
			continue
		}

		var file ruleFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			log.WithError(err).WithField("file", path).Error("Failed to parse rule file")
			continue
		}

		for _, spec := range file.Rules {
			if err := upsertRule(ctx, repo, spec); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"file": path, "rule": spec.Name,
				}).Error("Skipping invalid rule")
			}
		}
	}
	return nil
}

func upsertRule(ctx context.Context, repo repositories.RuleRepository, spec ruleSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("rule name is required")
	}

	rule := &models.AlertRule{
		Name:      spec.Name,
		Severity:  spec.Severity,
		Condition: spec.Condition,
		Channels:  models.ChannelList(spec.Channels),
		Enabled:   true,
	}
	if spec.Severity == "" {
		rule.Severity = models.SeverityWarning
	}
	if spec.Threshold != nil {
		rule.Threshold = sql.NullFloat64{Float64: *spec.Threshold, Valid: true}
	}
	if spec.Enabled != nil {
		rule.Enabled = *spec.Enabled
	}

	if spec.Duration != "" {
		d, err := time.ParseDuration(spec.Duration)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", spec.Duration, err)
		}
		rule.DurationSeconds = int64(d / time.Second)
	}

	rule.CooldownSeconds = int64(30 * time.Minute / time.Second)
	if spec.Cooldown != "" {
		d, err := time.ParseDuration(spec.Cooldown)
		if err != nil {
			return fmt.Errorf("invalid cooldown %q: %w", spec.Cooldown, err)
		}
		rule.CooldownSeconds = int64(d / time.Second)
	}

	if err := ValidateRule(rule); err != nil {
		return err
	}

	existing, err := repo.GetByName(ctx, spec.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		return repo.Create(ctx, rule)
	}

	rule.ID = existing.ID
	return repo.Update(ctx, rule)
}
