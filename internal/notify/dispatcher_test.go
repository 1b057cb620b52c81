package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannel struct {
	id       string
	attempts atomic.Int64
	failFor  int64 // fail this many attempts before succeeding; -1 = always
	delay    time.Duration
}

func (s *stubChannel) ID() string   { return s.id }
func (s *stubChannel) Type() string { return "stub" }

func (s *stubChannel) Send(ctx context.Context, msg Message) error {
	n := s.attempts.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.failFor < 0 || n <= s.failFor {
		return errors.New("stub failure")
	}
	return nil
}

func testLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestDispatcher(channels ...Channel) *Dispatcher {
	return NewDispatcher(channels, time.Second, 3, time.Millisecond, testLog())
}

func TestDispatchFansOutToAllChannels(t *testing.T) {
	a := &stubChannel{id: "a"}
	b := &stubChannel{id: "b"}
	d := newTestDispatcher(a, b)

	results := d.Dispatch(context.Background(), []string{"a", "b"}, Message{Title: "x"}, false)

	require.Len(t, results, 2)
	assert.NoError(t, results["a"])
	assert.NoError(t, results["b"])
	assert.EqualValues(t, 1, a.attempts.Load())
	assert.EqualValues(t, 1, b.attempts.Load())
}

func TestDispatchIsolatesChannelFailures(t *testing.T) {
	good := &stubChannel{id: "good"}
	bad := &stubChannel{id: "bad", failFor: -1}
	d := newTestDispatcher(good, bad)

	results := d.Dispatch(context.Background(), []string{"good", "bad"}, Message{}, false)

	assert.NoError(t, results["good"])
	assert.Error(t, results["bad"])
	assert.True(t, AnyDelivered(results))
}

func TestDispatchRetriesFireNotifications(t *testing.T) {
	// Fails twice, succeeds on the third attempt; within the retry budget.
	flaky := &stubChannel{id: "flaky", failFor: 2}
	d := newTestDispatcher(flaky)

	results := d.Dispatch(context.Background(), []string{"flaky"}, Message{}, true)

	assert.NoError(t, results["flaky"])
	assert.EqualValues(t, 3, flaky.attempts.Load())
}

func TestDispatchRetriesAreBounded(t *testing.T) {
	dead := &stubChannel{id: "dead", failFor: -1}
	d := newTestDispatcher(dead)

	results := d.Dispatch(context.Background(), []string{"dead"}, Message{}, true)

	assert.Error(t, results["dead"])
	// Initial attempt plus fireRetries.
	assert.EqualValues(t, 4, dead.attempts.Load())
	assert.False(t, AnyDelivered(results))
}

func TestDispatchNoRetryForNonFire(t *testing.T) {
	dead := &stubChannel{id: "dead", failFor: -1}
	d := newTestDispatcher(dead)

	results := d.Dispatch(context.Background(), []string{"dead"}, Message{}, false)

	assert.Error(t, results["dead"])
	assert.EqualValues(t, 1, dead.attempts.Load(), "escalation/resolve pushes go out once")
}

func TestDispatchUnknownChannel(t *testing.T) {
	d := newTestDispatcher(&stubChannel{id: "a"})

	results := d.Dispatch(context.Background(), []string{"a", "ghost"}, Message{}, false)

	assert.NoError(t, results["a"])
	assert.Error(t, results["ghost"])
}

func TestDispatchTimeoutDoesNotBlockOthers(t *testing.T) {
	slow := &stubChannel{id: "slow", delay: 5 * time.Second}
	fast := &stubChannel{id: "fast"}
	d := NewDispatcher([]Channel{slow, fast}, 50*time.Millisecond, 0, time.Millisecond, testLog())

	start := time.Now()
	results := d.Dispatch(context.Background(), []string{"slow", "fast"}, Message{}, false)

	assert.Error(t, results["slow"])
	assert.NoError(t, results["fast"])
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAnyDelivered(t *testing.T) {
	assert.False(t, AnyDelivered(nil))
	assert.False(t, AnyDelivered(map[string]error{"a": errors.New("x")}))
	assert.True(t, AnyDelivered(map[string]error{"a": errors.New("x"), "b": nil}))
}
