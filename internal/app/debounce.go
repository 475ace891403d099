package app

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a burst of changes is signalled.
const DefaultDebounce = 100 * time.Millisecond

// debouncer runs fire once after calls to Trigger stop for delay.
// fire is never run concurrently with itself.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	seq     uint64 // invalidates timers that were replaced or stopped
	pending bool
	stopped bool
	fire    func()
	firing  sync.Mutex
}

func newDebouncer(delay time.Duration, fire func()) *debouncer {
	return &debouncer{delay: delay, fire: fire}
}

// Trigger schedules fire, restarting the quiet period.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.delay <= 0 {
		d.pending = false
		go d.run()
		return
	}

	d.pending = true
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if !d.pending || d.seq != seq || d.stopped {
			d.mu.Unlock()
			return
		}
		d.pending = false
		d.mu.Unlock()
		d.run()
	})
}

func (d *debouncer) run() {
	d.firing.Lock()
	defer d.firing.Unlock()
	d.fire()
}

// Pending reports whether fire is scheduled.
func (d *debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop cancels a scheduled fire. Later triggers are ignored.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.pending = false
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
