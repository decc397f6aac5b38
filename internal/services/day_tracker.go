package services

import (
	"sync"
	"time"
)

// DayTracker remembers the calendar day of the last successful run of a
// once-per-day task. It is safe for concurrent use.
type DayTracker struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
	loc  *time.Location
}

// NewDayTracker creates a tracker evaluating days in UTC.
func NewDayTracker(now func() time.Time) *DayTracker {
	if now == nil {
		now = time.Now
	}
	return &DayTracker{now: now, loc: time.UTC}
}

// Due reports whether the task has not yet run today.
func (d *DayTracker) Due() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.last.IsZero() {
		return true
	}
	return !sameDay(d.last, d.now().In(d.loc))
}

// Mark records that the task ran now.
func (d *DayTracker) Mark() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = d.now().In(d.loc)
}

// Reset forces the next Due call to report true.
func (d *DayTracker) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = time.Time{}
}

// LastRun returns the time of the last Mark, or the zero time.
func (d *DayTracker) LastRun() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.last
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
