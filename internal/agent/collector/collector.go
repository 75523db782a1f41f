// Package collector implements Aperture's three independent event
// collectors (CPU, Lock, Syscall; spec §4.2): append-only event logs with a
// monotonically advancing push cursor, mutex-guarded so a single collector
// can be fed by many per-CPU reader goroutines and drained by one pusher
// goroutine concurrently.
package collector

import (
	"sync"

	"github.com/aperture-systems/aperture/internal/events"
)

// Collector accumulates events of one kind and tracks how many have
// already been taken by the streaming pusher (invariant C1: pushCursor ≤
// len(log) at all times).
type Collector struct {
	mu         sync.Mutex
	log        []events.Event
	pushCursor int
}

// New returns an empty collector.
func New() *Collector {
	return &Collector{}
}

// Add appends one event. O(1), never fails: a probe callback must never be
// made to block or error on a full collector.
func (c *Collector) Add(e events.Event) {
	c.mu.Lock()
	c.log = append(c.log, e)
	c.mu.Unlock()
}

// TakePending returns every event added since the last TakePending call and
// advances the cursor to the current log length. Concurrent callers of
// TakePending on the same collector are not supported; the mutex only
// protects against races with Add.
func (c *Collector) TakePending() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := make([]events.Event, len(c.log)-c.pushCursor)
	copy(pending, c.log[c.pushCursor:])
	c.pushCursor = len(c.log)
	return pending
}

// ProfileEvents returns a full copy of the log, used for the final flush at
// shutdown (invariant P1: every event added before shutdown must be visible
// to it, regardless of what the pusher already took).
func (c *Collector) ProfileEvents() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Event, len(c.log))
	copy(out, c.log)
	return out
}

// Len reports the number of events ever added, for metrics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.log)
}
