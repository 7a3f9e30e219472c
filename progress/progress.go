// Package progress rate-limits the periodic progress reporting of a long
// phase so that log lines appear no more frequently than a configured
// interval (spec.md §5: "a timer that logs no more frequently than every
// ~3 seconds").
package progress

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultInterval is the minimum spacing between progress log lines.
const DefaultInterval = 3 * time.Second

// Ticker gates progress reporting from many concurrent workers down to at
// most one log line per interval. The zero value is not usable; construct
// with New.
type Ticker struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// New returns a Ticker with the given minimum interval between reports
// (DefaultInterval when interval <= 0).
func New(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{interval: interval, now: time.Now}
}

// Ready reports whether enough time has passed since the last accepted
// report, and if so records the current time as the last report. Safe for
// concurrent use; at most one caller per interval sees true.
func (t *Ticker) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// Report logs a rate-limited progress line for the named phase: done out of
// total work units complete. Calls that arrive within the interval of the
// previous accepted report are dropped.
func (t *Ticker) Report(phase string, done, total int) {
	if !t.Ready() {
		return
	}
	logrus.WithFields(logrus.Fields{
		"phase": phase, "done": done, "total": total,
	}).Info("progress")
}
