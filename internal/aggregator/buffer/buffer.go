// Package buffer implements the aggregator's in-memory ring buffer (spec
// §4.6): a bounded FIFO of recently pushed batches, consulted for
// low-latency queries and for the push response's backpressure signal
// before anything reaches the persistent store.
package buffer

import (
	"sync"
	"time"

	"github.com/aperture-systems/aperture/internal/wire"
)

// maxCapacity caps the initial preallocation of a buffer's backing slice,
// and is the retention limit New uses when given maxBatches <= 0 (§4.6).
const maxCapacity = 4096

// Batch is one agent push as retained by the ring buffer.
type Batch struct {
	AgentID      string
	Sequence     uint64
	EventCount   uint64
	ReceivedAtNs int64
	Payload      []byte
}

// Buffer is a thread-safe bounded FIFO of Batches.
type Buffer struct {
	mu         sync.RWMutex
	maxBatches int
	batches    []Batch
	drops      uint64
}

// New builds a Buffer retaining up to maxBatches entries. maxCapacity only
// bounds the slice's initial preallocation, not retention: a buffer
// configured larger than maxCapacity still keeps every one of maxBatches
// entries, it just grows its backing array past the initial allocation
// to do so (§4.6).
func New(maxBatches int) *Buffer {
	if maxBatches <= 0 {
		maxBatches = maxCapacity
	}
	prealloc := maxBatches
	if prealloc > maxCapacity {
		prealloc = maxCapacity
	}
	return &Buffer{maxBatches: maxBatches, batches: make([]Batch, 0, prealloc)}
}

// Push appends one agent's pushed payload, decoding it only to count its
// events. A decode failure is non-fatal: the batch is still retained, with
// event_count 0 (§4.6, §7 "Decode" error class).
func (b *Buffer) Push(agentID string, sequence uint64, payload []byte) {
	var eventCount uint64
	if msg, err := wire.Decode(payload); err == nil {
		eventCount = uint64(len(msg.Events))
	}

	batch := Batch{
		AgentID:      agentID,
		Sequence:     sequence,
		EventCount:   eventCount,
		ReceivedAtNs: time.Now().UnixNano(),
		Payload:      payload,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, batch)
	for len(b.batches) > b.maxBatches {
		b.batches = b.batches[1:]
		b.drops++
	}
}

// Query returns up to limit (capped at 1000) batches, newest first,
// optionally filtered to one agent_id.
func (b *Buffer) Query(agentID string, limit int) []Batch {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Batch, 0, limit)
	for i := len(b.batches) - 1; i >= 0 && len(out) < limit; i-- {
		if agentID != "" && b.batches[i].AgentID != agentID {
			continue
		}
		out = append(out, b.batches[i])
	}
	return out
}

// Len reports the current batch count.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.batches)
}

// Drops reports the cumulative drop-oldest count (buffer_drops metric).
func (b *Buffer) Drops() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.drops
}

// Utilization returns the fraction of capacity currently in use, used to
// decide the push response's backpressure flag (§4.6).
func (b *Buffer) Utilization() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return float64(len(b.batches)) / float64(b.maxBatches)
}

// Backpressure reports whether utilization has crossed the 0.8 threshold.
func (b *Buffer) Backpressure() bool {
	return b.Utilization() > 0.8
}
