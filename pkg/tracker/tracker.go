// Package tracker keeps per-run throughput bookkeeping for the manager:
// elapsed wall time, estimated time remaining, and processing speed, driven
// by one-finished pulses from the reconciliation loop.
package tracker

import (
	"fmt"
	"sync"
	"time"
)

// Tracker accumulates finished-task pulses and derives timing estimates.
// It is safe for concurrent use.
type Tracker struct {
	mu            sync.Mutex
	totalTasks    int
	finishedTasks int
	startTime     time.Time
	now           func() time.Time
}

// New returns a tracker for a run of totalTasks tasks.
func New(totalTasks int) *Tracker {
	t := &Tracker{
		totalTasks: totalTasks,
		now:        time.Now,
	}
	t.startTime = t.now()
	return t
}

// Reset restarts the clock and zeroes the finished count.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishedTasks = 0
	t.startTime = t.now()
}

// Update records n more finished tasks.
func (t *Tracker) Update(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishedTasks += n
}

// Set overrides the finished count, used when resuming a run that already
// has terminal jobs on disk.
func (t *Tracker) Set(finished int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishedTasks = finished
}

// Finished returns the recorded finished count.
func (t *Tracker) Finished() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedTasks
}

// Elapsed returns the formatted wall time since the tracker started.
func (t *Tracker) Elapsed() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return FormatDuration(t.now().Sub(t.startTime))
}

// EST returns the estimated remaining time, or "Unknown" before the first
// finished task.
func (t *Tracker) EST() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finishedTasks == 0 {
		return "Unknown"
	}
	elapsed := t.now().Sub(t.startTime)
	perTask := elapsed / time.Duration(t.finishedTasks)
	remaining := time.Duration(t.totalTasks-t.finishedTasks) * perTask
	return FormatDuration(remaining)
}

// Speed returns the throughput as items/s for sub-second tasks, otherwise
// s/item, or "Unknown" before the first finished task.
func (t *Tracker) Speed() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finishedTasks == 0 {
		return "Unknown"
	}
	perTask := t.now().Sub(t.startTime).Seconds() / float64(t.finishedTasks)
	if perTask < 1 {
		return fmt.Sprintf("%.2f item/s", 1/perTask)
	}
	return fmt.Sprintf("%.2f s/item", perTask)
}

// Summary renders the one-line report embedded in the manager's status log.
func (t *Tracker) Summary() string {
	return fmt.Sprintf("Elapsed: %s EST: %s Speed: %s", t.Elapsed(), t.EST(), t.Speed())
}

// FormatDuration renders d in the largest sensible unit.
func FormatDuration(d time.Duration) string {
	sec := d.Seconds()
	switch {
	case sec < 60:
		return fmt.Sprintf("%.2f sec", sec)
	case sec < 3600:
		return fmt.Sprintf("%.2f min", sec/60)
	case sec < 86400:
		return fmt.Sprintf("%.2f h", sec/3600)
	default:
		return fmt.Sprintf("%.2f day", sec/86400)
	}
}
