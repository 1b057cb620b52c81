package alerting

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// WindowTracker remembers, per (rule, entity), when the condition first
// became true in the current unbroken streak. It decides whether the
// sustained-breach requirement is met.
//
// The state is in-memory only; at startup the engine re-seeds it from open
// incidents via Prime, so a restart does not close incidents whose
// condition is still true.
type WindowTracker struct {
	mu          sync.Mutex
	breachSince map[string]time.Time
}

func NewWindowTracker() *WindowTracker {
	return &WindowTracker{breachSince: make(map[string]time.Time)}
}

func windowKey(ruleID int64, scopeKey string) string {
	return fmt.Sprintf("%d|%s", ruleID, scopeKey)
}

// Observe records the current truth value for the pair and reports whether
// the breach has been sustained for at least duration. A zero duration
// means immediate fire: sustained on the very first breached observation.
func (t *WindowTracker) Observe(ruleID int64, scopeKey string, duration time.Duration, breached bool, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := windowKey(ruleID, scopeKey)

	if !breached {
		delete(t.breachSince, key)
		return false
	}

	since, ok := t.breachSince[key]
	if !ok {
		t.breachSince[key] = now
		return duration == 0
	}
	return now.Sub(since) >= duration
}

// Prime seeds the streak start for a pair, keeping an earlier existing
// value. Used to rebuild state from open incidents.
func (t *WindowTracker) Prime(ruleID int64, scopeKey string, since time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := windowKey(ruleID, scopeKey)
	if existing, ok := t.breachSince[key]; !ok || since.Before(existing) {
		t.breachSince[key] = since
	}
}

// BreachSince returns the current streak start for a pair, if any.
func (t *WindowTracker) BreachSince(ruleID int64, scopeKey string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	since, ok := t.breachSince[windowKey(ruleID, scopeKey)]
	return since, ok
}

// PruneExcept drops streak state for rules no longer being evaluated, so a
// disabled or deleted rule retains nothing.
func (t *WindowTracker) PruneExcept(active map[int64]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.breachSince {
		idPart, _, ok := strings.Cut(key, "|")
		if !ok {
			continue
		}
		ruleID, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			continue
		}
		if !active[ruleID] {
			delete(t.breachSince, key)
		}
	}
}
