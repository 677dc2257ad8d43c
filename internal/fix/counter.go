package fix

import (
	"strconv"
	"sync"
)

// Counter is a monotonically increasing id source safe for concurrent use.
// Values handed out by Next are never reissued unless given back by Release.
type Counter struct {
	mu   sync.Mutex
	last int64
}

// Next increments the counter and returns the new value
func (c *Counter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last
}

// NextID is Next formatted as a decimal string
func (c *Counter) NextID() string {
	return strconv.FormatInt(c.Next(), 10)
}

// Peek returns the last value handed out
func (c *Counter) Peek() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Release gives v back when it is the last value handed out, so the next
// call to Next returns it again. It reports whether the counter moved.
func (c *Counter) Release(v int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v <= 0 || v != c.last {
		return false
	}
	c.last--
	return true
}

// Set moves the counter forward to last. It never moves backwards.
func (c *Counter) Set(last int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last > c.last {
		c.last = last
	}
}

// Counters groups the session-scoped id sources shared by the builders.
type Counters struct {
	Seq        Counter
	ClOrdID    Counter
	MDReqID    Counter
	TestReqID  Counter
	TradeReqID Counter
}

// NewCounters returns counters that start at 1 on first use
func NewCounters() *Counters {
	return &Counters{}
}
