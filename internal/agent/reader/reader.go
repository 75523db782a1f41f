//go:build linux

// Package reader fans a kernel probe's per-CPU ring buffers into an
// agent-side collector (spec §4.4): one cooperative goroutine per online
// CPU, each draining its own ring buffer reader and folding fixed-layout
// probe records into events.Event before handing them to the shared
// collector.
package reader

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/agent/collector"
	"github.com/aperture-systems/aperture/internal/events"
)

// readDeadline bounds each ring buffer Read call so a reader goroutine can
// observe context cancellation promptly instead of blocking forever.
const readDeadline = 5 * time.Second

// StackResolver looks up the raw IPs behind a kernel stack-trace id, as
// populated by the probe's shared stack-trace table (§6). A stack id of -1
// means no stack was captured.
type StackResolver interface {
	Lookup(stackID int32) ([]uint64, error)
}

// cpuSampleRecord mirrors the CPU probe's C-repr fixed-layout record (§6).
type cpuSampleRecord struct {
	TimestampNs   uint64
	Pid           uint32
	Tid           uint32
	CPU           uint32
	UserStackID   int32
	KernelStackID int32
	Comm          [16]byte
}

// lockEventRecord mirrors the lock probe's fixed-layout record (§6).
type lockEventRecord struct {
	TimestampNs   uint64
	Pid           uint32
	Tid           uint32
	LockAddr      uint64
	WaitTimeNs    uint64
	UserStackID   int32
	KernelStackID int32
	Comm          [16]byte
}

// syscallEventRecord mirrors the syscall probe's fixed-layout record (§6).
type syscallEventRecord struct {
	TimestampNs uint64
	Pid         uint32
	Tid         uint32
	SyscallID   uint32
	DurationNs  uint64
	ReturnValue int64
	Comm        [16]byte
}

func commString(raw [16]byte) string {
	n := bytes.IndexByte(raw[:], 0)
	if n < 0 {
		n = len(raw)
	}
	return string(raw[:n])
}

// Kind selects which fixed-layout record a CPUReader expects from its ring
// buffer; each probe kind has its own ring buffer and record shape.
type Kind int

const (
	KindCPU Kind = iota
	KindLock
	KindSyscall
)

// MonotonicOffset is the once-computed (realtime - monotonic) duration
// added to every kernel CLOCK_MONOTONIC timestamp before it is stored on an
// Event (§6).
type MonotonicOffset struct {
	offsetNs int64
}

// NewMonotonicOffset computes the current realtime-minus-monotonic skew.
func NewMonotonicOffset() MonotonicOffset {
	return MonotonicOffset{offsetNs: time.Now().UnixNano() - monotonicNowNs()}
}

// Apply converts a kernel CLOCK_MONOTONIC timestamp to wall-clock
// nanoseconds.
func (m MonotonicOffset) Apply(monotonicNs uint64) uint64 {
	return uint64(int64(monotonicNs) + m.offsetNs)
}

// CPUReader drains one CPU's ring buffer into target, folding raw probe
// records into events.Event (§4.4).
type CPUReader struct {
	cpuID     int
	kind      Kind
	rb        *ringbuf.Reader
	stacks    StackResolver
	target    *collector.Collector
	offset    MonotonicOffset
	logger    zerolog.Logger
	drops     func()
	mu        sync.Mutex
	lostTotal uint64
}

// NewCPUReader builds a reader for one (cpuID, probe kind) pair.
func NewCPUReader(cpuID int, kind Kind, rb *ringbuf.Reader, stacks StackResolver, target *collector.Collector, offset MonotonicOffset, logger zerolog.Logger, onDrop func()) *CPUReader {
	return &CPUReader{
		cpuID:  cpuID,
		kind:   kind,
		rb:     rb,
		stacks: stacks,
		target: target,
		offset: offset,
		logger: logger.With().Int("cpu", cpuID).Str("kind", kindName(kind)).Logger(),
		drops:  onDrop,
	}
}

func kindName(k Kind) string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindLock:
		return "lock"
	case KindSyscall:
		return "syscall"
	default:
		return "unknown"
	}
}

// Run drains the ring buffer until ctx is cancelled or a non-recoverable
// read error occurs (§4.4's pseudocode loop). Each iteration sets a fresh
// read deadline so cancellation is observed within readDeadline.
func (r *CPUReader) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		r.rb.Close() // nolint:errcheck
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.rb.SetDeadline(time.Now().Add(readDeadline))
		record, err := r.rb.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			r.logger.Error().Err(err).Msg("reader: ring buffer read failed, exiting")
			return
		}

		if record.LostSamples > 0 {
			r.mu.Lock()
			r.lostTotal += record.LostSamples
			r.mu.Unlock()
			if r.drops != nil {
				r.drops()
			}
		}

		e, ok := r.parseRecord(record.RawSample)
		if !ok {
			continue
		}
		r.target.Add(e)
	}
}

// LostSamples reports the cumulative ring-buffer drop count observed on
// this CPU's reader, for metrics.
func (r *CPUReader) LostSamples() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lostTotal
}

func (r *CPUReader) parseRecord(raw []byte) (events.Event, bool) {
	switch r.kind {
	case KindCPU:
		return r.parseCPUSample(raw)
	case KindLock:
		return r.parseLockEvent(raw)
	case KindSyscall:
		return r.parseSyscallEvent(raw)
	default:
		return events.Event{}, false
	}
}

func (r *CPUReader) parseCPUSample(raw []byte) (events.Event, bool) {
	var rec cpuSampleRecord
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &rec); err != nil {
		r.logger.Debug().Err(err).Msg("reader: failed to parse CPU sample record")
		return events.Event{}, false
	}
	userStack := r.lookupStack(rec.UserStackID)
	kernelStack := r.lookupStack(rec.KernelStackID)
	return events.Event{
		Kind: events.KindCpuSample,
		Cpu: &events.CpuSample{
			Common: events.Common{
				TimestampNs: r.offset.Apply(rec.TimestampNs),
				Pid:         rec.Pid,
				Tid:         rec.Tid,
				Comm:        commString(rec.Comm),
			},
			CPUID:       rec.CPU,
			UserStack:   userStack,
			KernelStack: kernelStack,
		},
	}, true
}

func (r *CPUReader) parseLockEvent(raw []byte) (events.Event, bool) {
	var rec lockEventRecord
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &rec); err != nil {
		r.logger.Debug().Err(err).Msg("reader: failed to parse lock event record")
		return events.Event{}, false
	}
	stack := append(r.lookupStack(rec.UserStackID), r.lookupStack(rec.KernelStackID)...)
	return events.Event{
		Kind: events.KindLock,
		Lock: &events.LockEvent{
			Common: events.Common{
				TimestampNs: r.offset.Apply(rec.TimestampNs),
				Pid:         rec.Pid,
				Tid:         rec.Tid,
				Comm:        commString(rec.Comm),
			},
			LockAddr:   rec.LockAddr,
			WaitTimeNs: rec.WaitTimeNs,
			StackTrace: stack,
		},
	}, true
}

func (r *CPUReader) parseSyscallEvent(raw []byte) (events.Event, bool) {
	var rec syscallEventRecord
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &rec); err != nil {
		r.logger.Debug().Err(err).Msg("reader: failed to parse syscall event record")
		return events.Event{}, false
	}
	return events.Event{
		Kind: events.KindSyscall,
		Syscall: &events.SyscallEvent{
			Common: events.Common{
				TimestampNs: r.offset.Apply(rec.TimestampNs),
				Pid:         rec.Pid,
				Tid:         rec.Tid,
				Comm:        commString(rec.Comm),
			},
			SyscallID:   rec.SyscallID,
			DurationNs:  rec.DurationNs,
			ReturnValue: rec.ReturnValue,
		},
	}, true
}

// lookupStack resolves a stack-trace id via the shared stack table. -1
// means the probe captured no stack; a lookup error degrades to an empty
// stack rather than dropping the whole event.
func (r *CPUReader) lookupStack(stackID int32) []uint64 {
	if stackID < 0 || r.stacks == nil {
		return nil
	}
	ips, err := r.stacks.Lookup(stackID)
	if err != nil {
		r.logger.Debug().Err(err).Int32("stack_id", stackID).Msg("reader: stack lookup failed")
		return nil
	}
	return ips
}
