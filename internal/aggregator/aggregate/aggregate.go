// Package aggregate implements the aggregator's aggregation engine (spec
// §4.8): decodes stored/buffered batch payloads and merges their events
// into the same per-kind profile types the agent's own collectors build,
// then flattens the result to a JSON-safe shape for the admin API.
package aggregate

import (
	"encoding/base64"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/agent/collector"
	"github.com/aperture-systems/aperture/internal/events"
	"github.com/aperture-systems/aperture/internal/wire"
)

// MaxAggregateBatchLimit bounds how many payloads a single aggregate call
// will process, protecting the aggregator from an unbounded query.
const MaxAggregateBatchLimit = 10000

// Result holds the merged profiles across every decoded payload.
type Result struct {
	Cpu            *events.CpuProfile
	Lock           *events.LockProfile
	Syscall        *events.SyscallProfile
	TotalEvents    uint64
	SkippedBatches uint64
}

// AggregateBatches base64-decodes and wire-decodes each payload, merging
// every event into the appropriate per-kind profile. Either decode step
// failing is non-fatal: the payload is skipped and SkippedBatches
// increments (§4.8, §7 "Decode").
func AggregateBatches(payloadsB64 []string, logger zerolog.Logger) Result {
	var cpuEvts, lockEvts, syscallEvts []events.Event
	var result Result

	for _, p := range payloadsB64 {
		raw, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			result.SkippedBatches++
			logger.Warn().Err(err).Msg("aggregate: skipping payload with invalid base64")
			continue
		}
		msg, err := wire.Decode(raw)
		if err != nil {
			result.SkippedBatches++
			logger.Warn().Err(err).Msg("aggregate: skipping payload with invalid wire encoding")
			continue
		}

		for _, e := range msg.Events {
			result.TotalEvents++
			switch e.Kind {
			case events.KindCpuSample:
				cpuEvts = append(cpuEvts, e)
			case events.KindLock:
				lockEvts = append(lockEvts, e)
			case events.KindSyscall:
				syscallEvts = append(syscallEvts, e)
			case events.KindGpuKernel:
				// GPU kernel events are discarded; no profile type aggregates them.
			}
		}
	}

	if len(cpuEvts) > 0 {
		result.Cpu = collector.BuildCpuProfile(cpuEvts, 0)
	}
	if len(lockEvts) > 0 {
		result.Lock = collector.BuildLockProfile(lockEvts)
	}
	if len(syscallEvts) > 0 {
		result.Syscall = collector.BuildSyscallProfile(syscallEvts)
	}

	return result
}

// FilterByType zeroes out every profile except the requested kind. An
// empty or "all" eventType keeps everything.
func FilterByType(result *Result, eventType string) {
	switch eventType {
	case "cpu":
		result.Lock = nil
		result.Syscall = nil
	case "lock":
		result.Cpu = nil
		result.Syscall = nil
	case "syscall":
		result.Cpu = nil
		result.Lock = nil
	default:
	}
}

// StackCountJSON is one CPU stack's sample count, JSON-safe.
type StackCountJSON struct {
	Stack events.Stack `json:"stack"`
	Count uint64       `json:"count"`
}

// CpuProfileJSON is the JSON-flattened form of events.CpuProfile (§9
// "HashMap keys that are compound").
type CpuProfileJSON struct {
	StartTimeNs    uint64           `json:"start_time_ns"`
	EndTimeNs      uint64           `json:"end_time_ns"`
	TotalSamples   uint64           `json:"total_samples"`
	SamplePeriodNs uint64           `json:"sample_period_ns"`
	Stacks         []StackCountJSON `json:"stacks"`
}

// LockContentionJSON is one lock contention entry, JSON-safe.
type LockContentionJSON struct {
	LockAddr    uint64       `json:"lock_addr"`
	Stack       events.Stack `json:"stack"`
	Count       uint64       `json:"count"`
	TotalWaitNs uint64       `json:"total_wait_ns"`
	MinWaitNs   uint64       `json:"min_wait_ns"`
	MaxWaitNs   uint64       `json:"max_wait_ns"`
}

// LockProfileJSON is the JSON-flattened form of events.LockProfile.
type LockProfileJSON struct {
	StartTimeNs uint64               `json:"start_time_ns"`
	EndTimeNs   uint64               `json:"end_time_ns"`
	TotalEvents uint64               `json:"total_events"`
	Contentions []LockContentionJSON `json:"contentions"`
}

// ResultJSON is the API-facing, JSON-serializable aggregate result.
type ResultJSON struct {
	Cpu            *CpuProfileJSON                 `json:"cpu"`
	Lock           *LockProfileJSON                `json:"lock"`
	Syscall        map[uint32]*events.SyscallStats `json:"syscall"`
	TotalEvents    uint64                          `json:"total_events"`
	SkippedBatches uint64                          `json:"skipped_batches"`
}

// ToJSON flattens Result's compound-keyed maps into sorted arrays: CPU
// stacks by count descending, lock contentions by total wait descending.
func (r Result) ToJSON() ResultJSON {
	out := ResultJSON{TotalEvents: r.TotalEvents, SkippedBatches: r.SkippedBatches}

	if r.Cpu != nil {
		stacks := make([]StackCountJSON, 0, len(r.Cpu.Samples))
		for _, entry := range r.Cpu.Samples {
			stacks = append(stacks, StackCountJSON{Stack: entry.Stack, Count: entry.Count})
		}
		sort.Slice(stacks, func(i, j int) bool { return stacks[i].Count > stacks[j].Count })
		out.Cpu = &CpuProfileJSON{
			StartTimeNs:    r.Cpu.StartTimeNs,
			EndTimeNs:      r.Cpu.EndTimeNs,
			TotalSamples:   r.Cpu.TotalSamples,
			SamplePeriodNs: r.Cpu.SamplePeriodNs,
			Stacks:         stacks,
		}
	}

	if r.Lock != nil {
		contentions := make([]LockContentionJSON, 0, len(r.Lock.Contentions))
		var totalEvents uint64
		for _, c := range r.Lock.Contentions {
			contentions = append(contentions, LockContentionJSON{
				LockAddr:    c.LockAddr,
				Stack:       c.Stack,
				Count:       c.Count,
				TotalWaitNs: c.TotalWaitNs,
				MinWaitNs:   c.MinWaitNs,
				MaxWaitNs:   c.MaxWaitNs,
			})
			totalEvents += c.Count
		}
		sort.Slice(contentions, func(i, j int) bool { return contentions[i].TotalWaitNs > contentions[j].TotalWaitNs })
		out.Lock = &LockProfileJSON{
			StartTimeNs: r.Lock.StartTimeNs,
			EndTimeNs:   r.Lock.EndTimeNs,
			TotalEvents: totalEvents,
			Contentions: contentions,
		}
	}

	if r.Syscall != nil {
		out.Syscall = r.Syscall.Syscalls
	}

	return out
}
