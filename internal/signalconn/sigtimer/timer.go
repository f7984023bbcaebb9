// Package sigtimer provides the one-shot, cancellable timer used to
// drive the setup/termination/cancel-tick deadlines of spec.md §4.F.
// Only one timer is ever scheduled per connection (spec.md §3
// invariant 3); Start cancels whatever was previously scheduled
// before arming the new deadline, so callers never need to call
// Cancel before Start themselves.
package sigtimer

import (
	"sync"
	"time"
)

// Timer wraps a single *time.Timer with cancel-then-replace semantics
// and exposes the remaining duration for the debug formatter
// (spec.md §6).
type Timer struct {
	mu      sync.Mutex
	timer   *time.Timer
	expires time.Time
}

// Start arms fn to run after d, cancelling any timer previously
// scheduled on this Timer. fn runs on its own goroutine per
// time.AfterFunc semantics; callers invoking Conn methods from fn
// must not hold any lock fn would need to reacquire.
func (t *Timer) Start(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.expires = time.Now().Add(d)
	t.timer = time.AfterFunc(d, fn)
}

// Cancel stops the scheduled timer, if any. Safe to call when no
// timer is running.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// IsRunning reports whether a timer has been started and not
// cancelled since. A timer that has already fired still counts until
// Cancel is called.
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Remaining returns the time left until the scheduled fire, or 0 if
// no timer is running or it has already elapsed.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer == nil {
		return 0
	}
	remaining := time.Until(t.expires)
	if remaining < 0 {
		return 0
	}
	return remaining
}
