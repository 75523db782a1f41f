//go:build linux

// Package loader opens the ring buffer maps that the kernel-side probe
// programs feed (§1 Non-goal: probe programs themselves are out of
// scope). It expects those programs to already be loaded and attached —
// by a separate privileged loader, pinning their ring buffer maps under
// a bpffs directory — and simply opens the pinned maps by the
// conventional names below.
package loader

import (
	"fmt"
	"path/filepath"

	"github.com/cilium/ebpf"

	"github.com/aperture-systems/aperture/internal/agent/reader"
)

// mapNames are the pinned ring buffer filenames the probe loader is
// expected to produce, one per probe kind.
var mapNames = map[reader.Kind]string{
	reader.KindCPU:     "cpu_events",
	reader.KindLock:    "lock_events",
	reader.KindSyscall: "syscall_events",
}

// OpenPinned returns a reader.RingBufferOpener that loads each kind's ring
// buffer from "<pinDir>/<name>" (conventionally /sys/fs/bpf/aperture).
func OpenPinned(pinDir string) reader.RingBufferOpener {
	return func(kind reader.Kind) (*ebpf.Map, error) {
		name, ok := mapNames[kind]
		if !ok {
			return nil, fmt.Errorf("loader: no pinned map name for probe kind %d", kind)
		}
		m, err := ebpf.LoadPinnedMap(filepath.Join(pinDir, name), nil)
		if err != nil {
			return nil, fmt.Errorf("loader: open pinned map %q: %w", name, err)
		}
		return m, nil
	}
}

// stackTraceMapName is the pinned BPF_MAP_TYPE_STACK_TRACE map every probe
// shares to record the kernel and user IPs behind a sample's stack id.
const stackTraceMapName = "stack_traces"

// maxStackDepth bounds how many IP frames a single stack trace entry holds,
// matching the probe's PERF_MAX_STACK_DEPTH.
const maxStackDepth = 127

// stackResolver implements reader.StackResolver over a pinned stack-trace
// map, mirroring how the probe's collector side looks up user/kernel
// stacks by id.
type stackResolver struct {
	stacks *ebpf.Map
}

// OpenStackTraces opens the pinned stack-trace map under pinDir, returning
// a reader.StackResolver that callers pass to reader.Start.
func OpenStackTraces(pinDir string) (reader.StackResolver, error) {
	m, err := ebpf.LoadPinnedMap(filepath.Join(pinDir, stackTraceMapName), nil)
	if err != nil {
		return nil, fmt.Errorf("loader: open pinned map %q: %w", stackTraceMapName, err)
	}
	return &stackResolver{stacks: m}, nil
}

// Lookup resolves stackID into its raw instruction-pointer frames,
// trimming the trailing zero entries the kernel pads unused depth with.
func (r *stackResolver) Lookup(stackID int32) ([]uint64, error) {
	var raw [maxStackDepth]uint64
	if err := r.stacks.Lookup(uint32(stackID), &raw); err != nil {
		return nil, fmt.Errorf("loader: lookup stack id %d: %w", stackID, err)
	}
	return trimTrailingZeros(raw[:]), nil
}

// trimTrailingZeros drops the zero-padded tail a stack-trace map entry
// carries when the captured stack is shallower than maxStackDepth.
func trimTrailingZeros(raw []uint64) []uint64 {
	ips := make([]uint64, 0, len(raw))
	for _, ip := range raw {
		if ip == 0 {
			break
		}
		ips = append(ips, ip)
	}
	return ips
}
