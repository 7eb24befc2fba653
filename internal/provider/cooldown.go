package provider

import (
	"sync/atomic"
	"time"
)

// Cooldown is the shared point in time before which no new provider call
// should be issued. Concurrent rate-limit responses race to extend it; the
// take-the-max update guarantees an already-extended window never shrinks.
type Cooldown struct {
	until atomic.Int64 // unix nanoseconds
}

// NewCooldown creates an expired cooldown.
func NewCooldown() *Cooldown {
	return &Cooldown{}
}

// Extend moves the watermark forward to t if t is later than the current
// value. Safe for concurrent use.
func (c *Cooldown) Extend(t time.Time) {
	ns := t.UnixNano()
	for {
		cur := c.until.Load()
		if ns <= cur {
			return
		}
		if c.until.CompareAndSwap(cur, ns) {
			return
		}
	}
}

// Remaining returns how long a caller must still wait from now before
// issuing a request. Zero when the window has passed.
func (c *Cooldown) Remaining(now time.Time) time.Duration {
	until := c.until.Load()
	if until == 0 {
		return 0
	}
	d := time.Unix(0, until).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// sharedCooldown is the process-wide watermark used by every Client unless
// a private one is injected (tests).
var sharedCooldown = NewCooldown()
