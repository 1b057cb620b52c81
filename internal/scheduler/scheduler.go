package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a periodic unit of work driven by the scheduler. Jobs receive a
// context that is cancelled when the scheduler shuts down.
type Job func(ctx context.Context) error

// Scheduler runs the evaluation, escalation and collector jobs on fixed
// intervals. Each job is wrapped with SkipIfStillRunning so a slow tick is
// skipped rather than stacked, and Recover so a panicking job cannot take
// the process down.
type Scheduler struct {
	cron    *cron.Cron
	logger  *logrus.Logger
	mu      sync.Mutex
	running bool

	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger *logrus.Logger) *Scheduler {
	cronInstance := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cronInstance,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers a named job on the given interval. Intervals shorter than
// a second are rounded up to a second, the finest granularity cron supports.
func (s *Scheduler) AddJob(name string, interval time.Duration, job Job) error {
	seconds := int(interval / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	expr := fmt.Sprintf("@every %ds", seconds)
	_, err := s.cron.AddFunc(expr, func() {
		if err := job(s.ctx); err != nil {
			s.logger.WithError(err).WithField("job", name).Error("Scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"interval": interval.String(),
	}).Info("Registered scheduled job")
	return nil
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started")
	return nil
}

// Stop cancels the job context, stops the cron loop and waits for in-flight
// jobs to drain, giving up after 30 seconds.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler is not running")
	}

	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		s.logger.Info("All scheduled jobs completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn("Timeout waiting for scheduled jobs to complete")
	}

	s.running = false
	s.logger.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
