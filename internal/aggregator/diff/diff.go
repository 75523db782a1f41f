// Package diff implements the aggregator's differential profiling engine
// (spec §4.9): per-key deltas between a baseline and comparison profile,
// sorted by magnitude so the largest regressions/improvements surface
// first.
package diff

import (
	"sort"

	"github.com/aperture-systems/aperture/internal/events"
)

// StackDiff is one stack's baseline-vs-comparison sample delta.
type StackDiff struct {
	Stack            events.Stack
	BaselineCount    uint64
	ComparisonCount  uint64
	Delta            int64
	DeltaPct         float64
}

// CpuDiff compares two CPU profiles stack-by-stack.
type CpuDiff struct {
	BaselineTotal   uint64
	ComparisonTotal uint64
	Stacks          []StackDiff
}

func absInt64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// DiffCpu computes CpuDiff, sorted by |delta| descending.
func DiffCpu(baseline, comparison *events.CpuProfile) CpuDiff {
	type key struct {
		k     uint64
		stack events.Stack
	}
	seen := make(map[uint64]events.Stack)
	if baseline != nil {
		for k, e := range baseline.Samples {
			seen[k] = e.Stack
		}
	}
	if comparison != nil {
		for k, e := range comparison.Samples {
			seen[k] = e.Stack
		}
	}

	var baselineTotal, comparisonTotal uint64
	if baseline != nil {
		baselineTotal = baseline.TotalSamples
	}
	if comparison != nil {
		comparisonTotal = comparison.TotalSamples
	}

	stacks := make([]StackDiff, 0, len(seen))
	for k, stack := range seen {
		var b, c uint64
		if baseline != nil {
			if e, ok := baseline.Samples[k]; ok {
				b = e.Count
			}
		}
		if comparison != nil {
			if e, ok := comparison.Samples[k]; ok {
				c = e.Count
			}
		}
		delta := int64(c) - int64(b)
		var pct float64
		if b > 0 {
			pct = float64(delta) / float64(b) * 100.0
		}
		stacks = append(stacks, StackDiff{
			Stack:           stack,
			BaselineCount:   b,
			ComparisonCount: c,
			Delta:           delta,
			DeltaPct:        pct,
		})
	}

	sort.Slice(stacks, func(i, j int) bool { return absInt64(stacks[i].Delta) > absInt64(stacks[j].Delta) })

	return CpuDiff{BaselineTotal: baselineTotal, ComparisonTotal: comparisonTotal, Stacks: stacks}
}

// SyscallStatsDiff is one syscall id's baseline-vs-comparison delta.
type SyscallStatsDiff struct {
	SyscallID       uint32
	Name            string
	BaselineCount   uint64
	ComparisonCount uint64
	DeltaCount      int64
	BaselineAvgNs   float64
	ComparisonAvgNs float64
	DeltaAvgNs      float64
}

// SyscallDiff compares two syscall profiles per syscall id.
type SyscallDiff struct {
	Syscalls []SyscallStatsDiff
}

func avgNs(s *events.SyscallStats) float64 {
	if s == nil || s.Count == 0 {
		return 0
	}
	return float64(s.TotalDurationNs) / float64(s.Count)
}

// DiffSyscall computes SyscallDiff, sorted by |delta_count| descending.
func DiffSyscall(baseline, comparison *events.SyscallProfile) SyscallDiff {
	ids := make(map[uint32]struct{})
	if baseline != nil {
		for id := range baseline.Syscalls {
			ids[id] = struct{}{}
		}
	}
	if comparison != nil {
		for id := range comparison.Syscalls {
			ids[id] = struct{}{}
		}
	}

	out := make([]SyscallStatsDiff, 0, len(ids))
	for id := range ids {
		var b, c *events.SyscallStats
		if baseline != nil {
			b = baseline.Syscalls[id]
		}
		if comparison != nil {
			c = comparison.Syscalls[id]
		}

		name := ""
		if b != nil {
			name = b.Name
		} else if c != nil {
			name = c.Name
		}

		var bCount, cCount uint64
		if b != nil {
			bCount = b.Count
		}
		if c != nil {
			cCount = c.Count
		}
		bAvg := avgNs(b)
		cAvg := avgNs(c)

		out = append(out, SyscallStatsDiff{
			SyscallID:       id,
			Name:            name,
			BaselineCount:   bCount,
			ComparisonCount: cCount,
			DeltaCount:      int64(cCount) - int64(bCount),
			BaselineAvgNs:   bAvg,
			ComparisonAvgNs: cAvg,
			DeltaAvgNs:      cAvg - bAvg,
		})
	}

	sort.Slice(out, func(i, j int) bool { return absInt64(out[i].DeltaCount) > absInt64(out[j].DeltaCount) })

	return SyscallDiff{Syscalls: out}
}

// LockContentionDiff is one (lock_addr, stack) key's baseline-vs-comparison
// wait-time delta.
type LockContentionDiff struct {
	LockAddr        uint64
	Stack           events.Stack
	BaselineCount   uint64
	ComparisonCount uint64
	DeltaWaitNs     int64
}

// LockDiff compares two lock contention profiles per (lock_addr, stack).
type LockDiff struct {
	Contentions []LockContentionDiff
}

// DiffLock computes LockDiff, sorted by |delta_wait_ns| descending.
func DiffLock(baseline, comparison *events.LockProfile) LockDiff {
	keys := make(map[string]*events.LockContention)
	if baseline != nil {
		for k, c := range baseline.Contentions {
			keys[k] = c
		}
	}
	if comparison != nil {
		for k, c := range comparison.Contentions {
			keys[k] = c
		}
	}

	out := make([]LockContentionDiff, 0, len(keys))
	for k := range keys {
		var b, c *events.LockContention
		if baseline != nil {
			b = baseline.Contentions[k]
		}
		if comparison != nil {
			c = comparison.Contentions[k]
		}

		ref := b
		if ref == nil {
			ref = c
		}

		var bWait, cWait, bCount, cCount uint64
		if b != nil {
			bWait, bCount = b.TotalWaitNs, b.Count
		}
		if c != nil {
			cWait, cCount = c.TotalWaitNs, c.Count
		}

		out = append(out, LockContentionDiff{
			LockAddr:        ref.LockAddr,
			Stack:           ref.Stack,
			BaselineCount:   bCount,
			ComparisonCount: cCount,
			DeltaWaitNs:     int64(cWait) - int64(bWait),
		})
	}

	sort.Slice(out, func(i, j int) bool { return absInt64(out[i].DeltaWaitNs) > absInt64(out[j].DeltaWaitNs) })

	return LockDiff{Contentions: out}
}
