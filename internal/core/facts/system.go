package facts

import (
	"context"
	"time"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/repositories"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// SystemCollector samples local host resource usage and writes it into the
// metric tables, so the node running the backend monitors itself without a
// separate agent.
type SystemCollector struct {
	repo   repositories.FactRepository
	nodeID string
	log    *logrus.Logger
}

func NewSystemCollector(repo repositories.FactRepository, nodeID string, log *logrus.Logger) *SystemCollector {
	return &SystemCollector{repo: repo, nodeID: nodeID, log: log}
}

// Collect takes one round of samples. Individual probe failures are logged
// and skipped; whatever was read still gets recorded.
func (c *SystemCollector) Collect(ctx context.Context) {
	now := time.Now().UTC()

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		c.log.WithError(err).Warn("System collector: cpu probe failed")
	} else if len(percents) > 0 {
		c.record(ctx, "cpu_percent", percents[0], now)
	}

	if vmem, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		c.log.WithError(err).Warn("System collector: memory probe failed")
	} else {
		c.record(ctx, "mem_percent", vmem.UsedPercent, now)
	}

	if usage, err := disk.UsageWithContext(ctx, "/"); err != nil {
		c.log.WithError(err).Warn("System collector: disk probe failed")
	} else {
		c.record(ctx, "disk_percent", usage.UsedPercent, now)
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		c.log.WithError(err).Warn("System collector: load probe failed")
	} else {
		c.record(ctx, "load1", avg.Load1, now)
	}
}

func (c *SystemCollector) record(ctx context.Context, metric string, value float64, at time.Time) {
	sample := &models.MetricSample{
		ScopeType:  models.ScopeNode,
		ScopeKey:   c.nodeID,
		Metric:     metric,
		Value:      value,
		RecordedAt: at,
	}
	if err := c.repo.InsertSample(ctx, sample); err != nil {
		c.log.WithError(err).WithField("metric", metric).Warn("System collector: failed to record sample")
	}
}
