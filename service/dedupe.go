package service

import (
	"sync"
	"time"
)

const (
	defaultDedupeRetention = 10 * time.Minute
	defaultDedupeSweep     = 60 * time.Second
)

// Deduper tracks chat event IDs for a bounded window so delivery retries can
// be dropped. Best-effort and in-memory only: it does not survive restarts
// and does not coordinate across instances.
type Deduper struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	sweep     time.Duration
	now       func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewDeduper creates a deduper. Non-positive durations fall back to the
// defaults (10 minute retention, 60 second sweep).
func NewDeduper(retention, sweep time.Duration) *Deduper {
	if retention <= 0 {
		retention = defaultDedupeRetention
	}
	if sweep <= 0 {
		sweep = defaultDedupeSweep
	}
	return &Deduper{
		seen:      make(map[string]time.Time),
		retention: retention,
		sweep:     sweep,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
}

// Start launches the periodic sweep. Call Stop to shut it down.
func (d *Deduper) Start() {
	go func() {
		ticker := time.NewTicker(d.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.sweepExpired()
			case <-d.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (d *Deduper) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
}

// IsDuplicate reports whether eventID was marked seen within the retention
// window.
func (d *Deduper) IsDuplicate(eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	firstSeen, ok := d.seen[eventID]
	if !ok {
		return false
	}
	return d.now().Sub(firstSeen) < d.retention
}

// MarkSeen records the first-seen timestamp for eventID. Marking an already
// seen event does not refresh its timestamp.
func (d *Deduper) MarkSeen(eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[eventID]; !ok {
		d.seen[eventID] = d.now()
	}
}

// Len returns the number of tracked events.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Deduper) sweepExpired() {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := d.now().Add(-d.retention)
	for id, firstSeen := range d.seen {
		if firstSeen.Before(cutoff) {
			delete(d.seen, id)
		}
	}
}
