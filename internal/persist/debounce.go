package persist

import (
	"sync"
	"time"
)

// Debounced coalesces writes to one slot. Only the latest value is saved once
// the slot has been quiet for the configured delay.
type Debounced struct {
	store *Store
	slot  Slot
	delay time.Duration

	// saveMu orders saves so an older value never lands after a newer one.
	saveMu sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	pending any
	dirty   bool
	lastErr error
}

// Debounced returns a writer for slot. A delay <= 0 saves synchronously.
func (s *Store) Debounced(slot Slot, delay time.Duration) *Debounced {
	return &Debounced{store: s, slot: slot, delay: delay}
}

// Put schedules v to be saved, replacing any value still waiting.
func (d *Debounced) Put(v any) {
	if d.delay <= 0 {
		d.saveMu.Lock()
		defer d.saveMu.Unlock()
		err := d.store.Save(d.slot, v)
		d.mu.Lock()
		d.lastErr = err
		d.mu.Unlock()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = v
	d.dirty = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { _ = d.Flush() })
}

// Flush saves any pending value immediately.
func (d *Debounced) Flush() error {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if !d.dirty {
		err := d.lastErr
		d.mu.Unlock()
		return err
	}
	value := d.pending
	d.pending = nil
	d.dirty = false
	d.mu.Unlock()

	err := d.store.Save(d.slot, value)
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	return err
}
