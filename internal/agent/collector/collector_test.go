package collector

import (
	"sync"
	"testing"

	"github.com/aperture-systems/aperture/internal/events"
)

func cpuEvent(ts uint64, userStack []uint64) events.Event {
	return events.Event{
		Kind: events.KindCpuSample,
		Cpu: &events.CpuSample{
			Common:    events.Common{TimestampNs: ts, Pid: 1, Tid: 1, Comm: "test"},
			UserStack: userStack,
		},
	}
}

func TestCollector_TakePendingAdvancesCursor(t *testing.T) {
	c := New()
	c.Add(cpuEvent(1, []uint64{0x1}))
	c.Add(cpuEvent(2, []uint64{0x2}))

	first := c.TakePending()
	if len(first) != 2 {
		t.Fatalf("len(first) = %d, want 2", len(first))
	}

	c.Add(cpuEvent(3, []uint64{0x3}))
	second := c.TakePending()
	if len(second) != 1 {
		t.Fatalf("len(second) = %d, want 1", len(second))
	}
	if second[0].Cpu.TimestampNs != 3 {
		t.Errorf("second[0].TimestampNs = %d, want 3", second[0].Cpu.TimestampNs)
	}

	if empty := c.TakePending(); len(empty) != 0 {
		t.Errorf("len(empty) = %d, want 0", len(empty))
	}
}

func TestCollector_ProfileEventsDoesNotAdvanceCursor(t *testing.T) {
	c := New()
	c.Add(cpuEvent(1, []uint64{0x1}))

	all := c.ProfileEvents()
	if len(all) != 1 {
		t.Fatalf("len(all) = %d, want 1", len(all))
	}

	pending := c.TakePending()
	if len(pending) != 1 {
		t.Errorf("len(pending) = %d, want 1 (ProfileEvents must not consume the cursor)", len(pending))
	}
}

func TestCollector_ConcurrentAddRespectsCursorInvariant(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Add(cpuEvent(1, []uint64{0x1}))
			}
		}()
	}
	wg.Wait()

	pending := c.TakePending()
	if len(pending) != 400 {
		t.Errorf("len(pending) = %d, want 400", len(pending))
	}
	if c.Len() != 400 {
		t.Errorf("Len() = %d, want 400", c.Len())
	}
}

func TestBuildCpuProfile_SkipsEmptyStacks(t *testing.T) {
	evts := []events.Event{
		cpuEvent(100, []uint64{0x1000}),
		cpuEvent(200, nil),
	}
	profile := BuildCpuProfile(evts, 10_000_000)
	if profile.TotalSamples != 1 {
		t.Errorf("TotalSamples = %d, want 1", profile.TotalSamples)
	}
	if profile.StartTimeNs != 100 || profile.EndTimeNs != 100 {
		t.Errorf("time range = [%d, %d], want [100, 100]", profile.StartTimeNs, profile.EndTimeNs)
	}
}

func TestBuildLockProfile_AggregatesByStack(t *testing.T) {
	mkLock := func(ts, wait uint64) events.Event {
		return events.Event{Kind: events.KindLock, Lock: &events.LockEvent{
			Common: events.Common{TimestampNs: ts}, LockAddr: 0xabc, WaitTimeNs: wait, StackTrace: []uint64{0x1},
		}}
	}
	profile := BuildLockProfile([]events.Event{mkLock(1, 100), mkLock(2, 300)})
	if len(profile.Contentions) != 1 {
		t.Fatalf("len(Contentions) = %d, want 1", len(profile.Contentions))
	}
	for _, c := range profile.Contentions {
		if c.Count != 2 {
			t.Errorf("Count = %d, want 2", c.Count)
		}
		if c.TotalWaitNs != 400 {
			t.Errorf("TotalWaitNs = %d, want 400", c.TotalWaitNs)
		}
		if c.MinWaitNs != 100 || c.MaxWaitNs != 300 {
			t.Errorf("min/max = %d/%d, want 100/300", c.MinWaitNs, c.MaxWaitNs)
		}
	}
}

func TestBuildSyscallProfile_TracksErrorsAndHistogram(t *testing.T) {
	mkSyscall := func(duration uint64, ret int64) events.Event {
		return events.Event{Kind: events.KindSyscall, Syscall: &events.SyscallEvent{
			SyscallID: 0, DurationNs: duration, ReturnValue: ret,
		}}
	}
	profile := BuildSyscallProfile([]events.Event{mkSyscall(1000, 0), mkSyscall(2000, -1)})
	stats := profile.Syscalls[0]
	if stats.Name != "read" {
		t.Errorf("Name = %q, want read", stats.Name)
	}
	if stats.Count != 2 {
		t.Errorf("Count = %d, want 2", stats.Count)
	}
	if stats.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", stats.ErrorCount)
	}
}

func TestSyscallName_FallsBackToPlaceholder(t *testing.T) {
	if got := syscallName(99999); got != "syscall_99999" {
		t.Errorf("syscallName(99999) = %q, want syscall_99999", got)
	}
}
