package facts

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/models"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/repositories"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisCollector samples a Redis instance used by the mail stack (session
// store, greylisting, rspamd backend) via INFO and records the figures the
// seed rules alert on.
type RedisCollector struct {
	client *redis.Client
	repo   repositories.FactRepository
	nodeID string
	log    *logrus.Logger
}

func NewRedisCollector(addr, password string, db int, repo repositories.FactRepository, nodeID string, log *logrus.Logger) *RedisCollector {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	return &RedisCollector{client: client, repo: repo, nodeID: nodeID, log: log}
}

func (c *RedisCollector) Close() error {
	return c.client.Close()
}

func (c *RedisCollector) Collect(ctx context.Context) {
	now := time.Now().UTC()

	info, err := c.client.Info(ctx, "clients", "memory").Result()
	if err != nil {
		c.log.WithError(err).Warn("Redis collector: INFO failed")
		return
	}

	fields := parseRedisInfo(info)

	if clients, ok := fields["connected_clients"]; ok {
		c.record(ctx, "redis_connected_clients", clients, now)
	}

	used, usedOK := fields["used_memory"]
	max, maxOK := fields["maxmemory"]
	if usedOK && maxOK && max > 0 {
		c.record(ctx, "redis_mem_percent", used/max*100, now)
	} else if usedOK {
		c.record(ctx, "redis_used_memory_bytes", used, now)
	}

	if qlen, err := c.client.LLen(ctx, "mail:deferred").Result(); err == nil {
		c.record(ctx, "redis_deferred_queue", float64(qlen), now)
	}
}

func (c *RedisCollector) record(ctx context.Context, metric string, value float64, at time.Time) {
	sample := &models.MetricSample{
		ScopeType:  models.ScopeNode,
		ScopeKey:   c.nodeID,
		Metric:     metric,
		Value:      value,
		RecordedAt: at,
	}
	if err := c.repo.InsertSample(ctx, sample); err != nil {
		c.log.WithError(err).WithField("metric", metric).Warn("Redis collector: failed to record sample")
	}
}

// parseRedisInfo extracts numeric key:value lines from INFO output.
func parseRedisInfo(info string) map[string]float64 {
	fields := make(map[string]float64)
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			fields[key] = v
		}
	}
	return fields
}
