// Package tracker provides lightweight counters for running work.
package tracker

import "sync/atomic"

// Tracker counts in-flight orchestrations using atomics.
// The zero value is ready to use.
type Tracker struct {
	running atomic.Int64
	total   atomic.Int64
}

// Inc increments the running counter.
func (t *Tracker) Inc() {
	t.running.Add(1)
	t.total.Add(1)
}

// Dec decrements the running counter.
func (t *Tracker) Dec() { t.running.Add(-1) }

// Track increments the counter and returns the matching decrement,
// for use as `defer tr.Track()()`.
func (t *Tracker) Track() func() {
	t.Inc()
	return t.Dec
}

// Running returns the current running count.
func (t *Tracker) Running() int64 { return t.running.Load() }

// Total returns how many units of work were ever started.
func (t *Tracker) Total() int64 { return t.total.Load() }
