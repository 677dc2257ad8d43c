package session

import (
	"sync"
	"time"

	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
)

// ThrottleCheck is the outcome of one full window
type ThrottleCheck struct {
	RatePerMinute    float64
	AvgPerMinute     float64
	Exceeded         bool
	WindowDuration   time.Duration
	MessagesInWindow int
}

// Throttle watches the outbound message rate. It only reports; sending is
// never delayed.
type Throttle struct {
	policy fix.ThrottlePolicy
	now    func() time.Time

	mu          sync.Mutex
	count       int
	total       int
	windowStart time.Time
	started     time.Time
}

// NewThrottle returns nil when policy has no window
func NewThrottle(policy fix.ThrottlePolicy, now func() time.Time) *Throttle {
	if policy.Window <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Throttle{policy: policy, now: now, windowStart: t, started: t}
}

// Record counts one outbound message. It returns a check each time a window
// of policy.Window messages completes.
func (t *Throttle) Record() (ThrottleCheck, bool) {
	if t == nil {
		return ThrottleCheck{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++
	t.total++
	if t.count < t.policy.Window {
		return ThrottleCheck{}, false
	}

	now := t.now()
	elapsed := now.Sub(t.windowStart)
	check := ThrottleCheck{WindowDuration: elapsed, MessagesInWindow: t.count}
	// a window completed within the clock resolution counts as infinitely fast
	secs := elapsed.Seconds()
	if secs < 0.001 {
		secs = 0.001
	}
	check.RatePerMinute = float64(t.policy.Window+1) * 60 / secs
	check.Exceeded = t.policy.MaxPerMinute > 0 && check.RatePerMinute > t.policy.MaxPerMinute
	if running := now.Sub(t.started).Minutes(); running > 0 {
		check.AvgPerMinute = float64(t.total) / running
	}

	t.count = 0
	t.windowStart = now
	return check, true
}
