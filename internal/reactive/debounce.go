package reactive

import (
	"sync"
	"time"
)

// Debouncer runs the last scheduled function once no new call arrived for
// the configured wait (trailing edge).
//
// Thread-safety: Debouncer is safe for concurrent use.
type Debouncer struct {
	mu       sync.Mutex
	wait     time.Duration
	timer    *time.Timer
	gen      uint64
	canceled bool
}

// NewDebouncer creates a debouncer with the given wait.
func NewDebouncer(wait time.Duration) *Debouncer {
	return &Debouncer{wait: wait}
}

// Call schedules fn, superseding any call still waiting.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.canceled {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.wait, func() {
		d.mu.Lock()
		live := !d.canceled && d.gen == gen
		if live {
			d.timer = nil
		}
		d.mu.Unlock()
		if live {
			fn()
		}
	})
}

// Pending reports whether a call is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the waiting call and ignores every later Call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.canceled = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
