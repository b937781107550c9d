package session

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

// ResetTimer runs one deferred action at a time. Arming again or cancelling
// supersedes the pending action; a superseded action never runs, even if its
// timer already fired.
type ResetTimer struct {
	clock clock.Clock
	delay time.Duration
	gen   atomic.Uint64

	mu    sync.Mutex
	timer *clock.Timer
}

// NewResetTimer returns a timer firing delay after each Arm.
func NewResetTimer(clk clock.Clock, delay time.Duration) *ResetTimer {
	if clk == nil {
		clk = clock.New()
	}
	return &ResetTimer{clock: clk, delay: delay}
}

// Arm schedules fn, superseding any pending action. fn runs with the timer's
// lock held and must not call Arm or Cancel.
func (r *ResetTimer) Arm(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	gen := r.gen.Inc()
	r.timer = r.clock.AfterFunc(r.delay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.gen.Load() != gen {
			return
		}
		r.timer = nil
		fn()
	})
}

// Cancel drops the pending action, if any.
func (r *ResetTimer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen.Inc()
	r.stopLocked()
}

// Pending reports whether an action is armed.
func (r *ResetTimer) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

func (r *ResetTimer) stopLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
