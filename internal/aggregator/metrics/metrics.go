// Package metrics is the aggregator's Prometheus text-format metrics
// registry (spec §4.11). There is no generated/imported Prometheus
// client here (§B "hand-rolled Prometheus text registry"): the registry
// is a small fixed set of named counters/gauges/histograms rendered
// directly to the text v0.0.4 exposition format, mirroring the original
// `metrics.rs` surface one field at a time.
package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var pushDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}
var chFlushDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0}

// Registry holds the aggregator's fixed metric set.
type Registry struct {
	pushOK    atomic.Uint64
	pushErr   atomic.Uint64
	pushEvts  atomic.Uint64
	pushDur   *histogram
	bufSize   atomic.Int64
	bufDrops  atomic.Uint64
	chFlushOK atomic.Uint64
	chFlushEr atomic.Uint64
	chRows    atomic.Uint64
	chDur     *histogram
	chPending atomic.Int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		pushDur: newHistogram(pushDurationBuckets),
		chDur:   newHistogram(chFlushDurationBuckets),
	}
}

// ObservePush records one Push RPC's outcome, event count, and latency.
func (r *Registry) ObservePush(ok bool, events uint64, seconds float64) {
	if ok {
		r.pushOK.Add(1)
	} else {
		r.pushErr.Add(1)
	}
	r.pushEvts.Add(events)
	r.pushDur.observe(seconds)
}

// SetBufferSize sets the current ring buffer batch count gauge.
func (r *Registry) SetBufferSize(n int) { r.bufSize.Store(int64(n)) }

// SetBufferDrops sets the buffer_drops_total counter to the buffer's own
// cumulative drop count, which the caller already tracks monotonically.
func (r *Registry) SetBufferDrops(n uint64) { r.bufDrops.Store(n) }

// ObserveFlush records one store flush attempt's outcome, row count, and
// latency.
func (r *Registry) ObserveFlush(ok bool, rows uint64, seconds float64) {
	if ok {
		r.chFlushOK.Add(1)
	} else {
		r.chFlushEr.Add(1)
	}
	r.chRows.Add(rows)
	r.chDur.observe(seconds)
}

// SetPendingRows sets the store pending-row gauge.
func (r *Registry) SetPendingRows(n int) { r.chPending.Store(int64(n)) }

// Snapshot is a point-in-time read of the registry's counters and gauges,
// for callers (the admin health endpoint) that want typed values rather
// than re-parsing Encode's text exposition.
type Snapshot struct {
	PushOK               uint64
	PushErr              uint64
	PushEventsTotal      uint64
	BufferBatches        int64
	BufferDropsTotal     uint64
	ClickhouseFlushOK    uint64
	ClickhouseFlushErr   uint64
	ClickhousePendingRow int64
}

// Snapshot reads every counter and gauge atomically with respect to each
// other's own updates (each field load is independently atomic; the
// struct as a whole is a best-effort point-in-time view).
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		PushOK:               r.pushOK.Load(),
		PushErr:              r.pushErr.Load(),
		PushEventsTotal:      r.pushEvts.Load(),
		BufferBatches:        r.bufSize.Load(),
		BufferDropsTotal:     r.bufDrops.Load(),
		ClickhouseFlushOK:    r.chFlushOK.Load(),
		ClickhouseFlushErr:   r.chFlushEr.Load(),
		ClickhousePendingRow: r.chPending.Load(),
	}
}

// Encode renders the registry in Prometheus text v0.0.4 format.
func (r *Registry) Encode() string {
	var b strings.Builder

	writeCounterVec(&b, "aperture_push_total", "Total push RPCs received", map[string]uint64{
		"ok":    r.pushOK.Load(),
		"error": r.pushErr.Load(),
	})
	writeCounter(&b, "aperture_push_events_total", "Total events ingested via push", r.pushEvts.Load())
	writeHistogram(&b, "aperture_push_duration_seconds", "Push RPC latency", r.pushDur)

	writeGauge(&b, "aperture_buffer_batches", "Current number of batches in the in-memory buffer", float64(r.bufSize.Load()))
	writeCounter(&b, "aperture_buffer_drops_total", "Batches dropped from buffer due to capacity", r.bufDrops.Load())

	writeCounterVec(&b, "aperture_clickhouse_flush_total", "Store flush attempts", map[string]uint64{
		"ok":    r.chFlushOK.Load(),
		"error": r.chFlushEr.Load(),
	})
	writeCounter(&b, "aperture_clickhouse_flush_rows_total", "Rows flushed to the store", r.chRows.Load())
	writeHistogram(&b, "aperture_clickhouse_flush_duration_seconds", "Store flush latency", r.chDur)
	writeGauge(&b, "aperture_clickhouse_pending_rows", "Rows currently pending flush to the store", float64(r.chPending.Load()))

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s gauge\n%s %s\n", name, help, name, name, formatFloat(value))
}

func writeCounterVec(b *strings.Builder, name, help string, byLabel map[string]uint64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(b, "%s{status=%q} %d\n", name, l, byLabel[l])
	}
}

func writeHistogram(b *strings.Builder, name, help string, h *histogram) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s histogram\n", name, help, name)
	cumulative := uint64(0)
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		fmt.Fprintf(b, "%s_bucket{le=%q} %d\n", name, formatFloat(bound), cumulative)
	}
	cumulative += h.counts[len(h.buckets)]
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"} %d\n", name, cumulative)
	fmt.Fprintf(b, "%s_sum %s\n", name, formatFloat(h.sum))
	fmt.Fprintf(b, "%s_count %d\n", name, h.total)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// histogram is a fixed-bucket cumulative histogram.
type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64 // counts[i] = samples in (buckets[i-1], buckets[i]]; counts[len(buckets)] = overflow
	sum     float64
	total   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{buckets: buckets, counts: make([]uint64, len(buckets)+1)}
}

func (h *histogram) observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.total++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.buckets)]++
}
