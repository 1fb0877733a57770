package service

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid-fire mutations into one deferred save per key.
// Each Schedule resets the key's timer; Flush cancels the pending timer and
// runs the latest scheduled func synchronously.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]func()
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = 1500 * time.Millisecond
	}
	return &Debouncer{
		delay:   delay,
		timers:  map[string]*time.Timer{},
		pending: map[string]func(){},
	}
}

func (d *Debouncer) Schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if timer, ok := d.timers[key]; ok {
		timer.Stop()
	}
	d.pending[key] = fn
	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		fn := d.pending[key]
		delete(d.pending, key)
		delete(d.timers, key)
		d.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

// Flush runs the key's pending func immediately, or does nothing when no save
// is scheduled. Used by the explicit save endpoint and session teardown.
func (d *Debouncer) Flush(key string) {
	d.mu.Lock()
	timer := d.timers[key]
	fn := d.pending[key]
	delete(d.pending, key)
	delete(d.timers, key)
	d.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	if fn != nil {
		fn()
	}
}

// Cancel drops the key's pending save without running it. Used when the
// overlay is replaced wholesale (reset, import) and a deferred save of the
// old state must not resurrect it.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	timer := d.timers[key]
	delete(d.pending, key)
	delete(d.timers, key)
	d.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
		delete(d.pending, key)
	}
}
