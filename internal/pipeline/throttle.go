package pipeline

import (
	"sync"
	"time"
)

// Throttler runs fn at most once per wait. The first Trigger in a quiet
// period runs immediately; triggers inside the window collapse into one
// trailing run when the window closes.
type Throttler struct {
	wait time.Duration
	fn   func()

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
}

func NewThrottler(wait time.Duration, fn func()) *Throttler {
	return &Throttler{wait: wait, fn: fn}
}

func (t *Throttler) Trigger() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.pending = true
		t.mu.Unlock()
		return
	}
	t.timer = time.AfterFunc(t.wait, t.fire)
	t.mu.Unlock()
	t.fn()
}

func (t *Throttler) fire() {
	t.mu.Lock()
	if !t.pending || t.stopped {
		t.timer = nil
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.timer = time.AfterFunc(t.wait, t.fire)
	t.mu.Unlock()
	t.fn()
}

// Stop cancels any pending trailing run. Later triggers are ignored.
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
