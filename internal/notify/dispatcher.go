package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/core/metrics"
	"github.com/sirupsen/logrus"
)

// Dispatcher fans a message out to a set of channels. Each channel gets its
// own goroutine and timeout; one channel failing or hanging never blocks
// delivery to the others, and never affects incident state.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]Channel

	sendTimeout  time.Duration
	fireRetries  int
	retryBackoff time.Duration
	log          *logrus.Logger
}

func NewDispatcher(channels []Channel, sendTimeout time.Duration, fireRetries int, retryBackoff time.Duration, log *logrus.Logger) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	if retryBackoff <= 0 {
		retryBackoff = 2 * time.Second
	}

	byID := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ID()] = ch
	}
	return &Dispatcher{
		channels:     byID,
		sendTimeout:  sendTimeout,
		fireRetries:  fireRetries,
		retryBackoff: retryBackoff,
		log:          log,
	}
}

// Channels returns the ids of all configured channels.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.channels))
	for id := range d.channels {
		ids = append(ids, id)
	}
	return ids
}

// Dispatch delivers msg to every named channel independently and returns
// the per-channel results. When retry is true (initial fire notifications)
// each failing channel is retried a bounded number of times with
// exponential backoff; escalation and resolution pushes go out once, since
// a missed push is superseded by the next tier or by resolution.
func (d *Dispatcher) Dispatch(ctx context.Context, channelIDs []string, msg Message, retry bool) map[string]error {
	results := make(map[string]error, len(channelIDs))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range channelIDs {
		d.mu.RLock()
		ch, ok := d.channels[id]
		d.mu.RUnlock()

		if !ok {
			mu.Lock()
			results[id] = fmt.Errorf("unknown channel %q", id)
			mu.Unlock()
			d.log.WithField("channel", id).Warn("Notification channel not configured")
			continue
		}

		wg.Add(1)
		go func(id string, ch Channel) {
			defer wg.Done()

			err := d.sendWithPolicy(ctx, ch, msg, retry)

			status := "ok"
			if err != nil {
				status = "error"
				d.log.WithError(err).WithFields(logrus.Fields{
					"channel": id, "type": ch.Type(), "incident": msg.IncidentID,
				}).Error("Notification delivery failed")
			}
			metrics.NotificationsTotal.WithLabelValues(id, status).Inc()

			mu.Lock()
			results[id] = err
			mu.Unlock()
		}(id, ch)
	}

	wg.Wait()
	return results
}

func (d *Dispatcher) sendWithPolicy(ctx context.Context, ch Channel, msg Message, retry bool) error {
	attempt := func() error {
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
		return ch.Send(sendCtx, msg)
	}

	if !retry || d.fireRetries <= 0 {
		return attempt()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.retryBackoff
	return backoff.Retry(attempt, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(d.fireRetries)), ctx))
}

// AnyDelivered reports whether at least one channel accepted the message.
func AnyDelivered(results map[string]error) bool {
	for _, err := range results {
		if err == nil {
			return true
		}
	}
	return false
}
