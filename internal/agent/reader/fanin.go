//go:build linux

package reader

import (
	"context"
	"fmt"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/rs/zerolog"
	gopsutilcpu "github.com/shirou/gopsutil/v4/cpu"

	"github.com/aperture-systems/aperture/internal/agent/collector"
)

// RingBufferOpener opens one probe kind's ring buffer map for reading. The
// probe programs themselves are out of scope (§1); callers supply this
// after loading and attaching whatever eBPF objects emit into the map.
type RingBufferOpener func(kind Kind) (*ebpf.Map, error)

// Manager owns one CPUReader goroutine per (online CPU, active probe kind)
// pair and the cancellation needed to stop them all together (§4.4).
type Manager struct {
	logger  zerolog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	readers []*CPUReader
}

// Start launches a reader goroutine per online CPU for each requested
// probe kind, all draining into their corresponding collector. The task
// boundary is the cancellation point: stopping the returned Manager aborts
// every reader goroutine (§4.4 "Cancellation").
func Start(ctx context.Context, kinds map[Kind]*collector.Collector, open RingBufferOpener, stacks StackResolver, logger zerolog.Logger, onDrop func()) (*Manager, error) {
	numCPU, err := ebpf.PossibleCPU()
	if err != nil {
		return nil, fmt.Errorf("reader: determine possible CPU count: %w", err)
	}
	if online, err := gopsutilcpu.Counts(true); err == nil && online > 0 && online < numCPU {
		logger.Warn().Int("possible_cpus", numCPU).Int("online_cpus", online).
			Msg("reader: kernel reports more possible CPUs than are online, sizing fan-in to the online count")
		numCPU = online
	}

	runCtx, cancel := context.WithCancel(ctx)
	offset := NewMonotonicOffset()
	m := &Manager{logger: logger, cancel: cancel}

	for kind, target := range kinds {
		rbMap, err := open(kind)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("reader: open ring buffer for %s: %w", kindName(kind), err)
		}
		for cpu := 0; cpu < numCPU; cpu++ {
			rb, err := ringbuf.NewReader(rbMap)
			if err != nil {
				cancel()
				return nil, fmt.Errorf("reader: new ring buffer reader for %s cpu %d: %w", kindName(kind), cpu, err)
			}
			reader := NewCPUReader(cpu, kind, rb, stacks, target, offset, logger, onDrop)
			m.readers = append(m.readers, reader)
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				reader.Run(runCtx)
			}()
		}
	}

	return m, nil
}

// Stop cancels every reader goroutine and waits for them to exit.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// TotalLostSamples sums the ring-buffer drop count across all readers.
func (m *Manager) TotalLostSamples() uint64 {
	var total uint64
	for _, r := range m.readers {
		total += r.LostSamples()
	}
	return total
}
