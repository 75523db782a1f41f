package collector

import "github.com/aperture-systems/aperture/internal/events"

// stackFromCpu builds the combined user+kernel Stack used as a CpuProfile
// key, applying resolved symbols where invariant S1 says they're present.
func stackFromCpu(s *events.CpuSample) events.Stack {
	stack := make(events.Stack, 0, len(s.UserStack)+len(s.KernelStack))
	for i, ip := range s.UserStack {
		stack = append(stack, frameFor(ip, events.SymbolAt(s.UserStackSymbols, i)))
	}
	for i, ip := range s.KernelStack {
		stack = append(stack, frameFor(ip, events.SymbolAt(s.KernelStackSymbols, i)))
	}
	return stack
}

func stackFromLock(e *events.LockEvent) events.Stack {
	stack := make(events.Stack, 0, len(e.StackTrace))
	for i, ip := range e.StackTrace {
		stack = append(stack, frameFor(ip, events.SymbolAt(e.StackSymbols, i)))
	}
	return stack
}

func frameFor(ip uint64, symbol *string) events.Frame {
	if symbol == nil {
		return events.UnresolvedFrame(ip)
	}
	return events.FrameFromSymbol(ip, *symbol)
}

// BuildCpuProfile folds the given CPU-sample events into a CpuProfile,
// skipping samples whose combined stack is empty (§4.2).
func BuildCpuProfile(evts []events.Event, samplePeriodNs uint64) *events.CpuProfile {
	profile := events.NewCpuProfile()
	profile.SamplePeriodNs = samplePeriodNs
	for i := range evts {
		e := evts[i]
		if e.Kind != events.KindCpuSample {
			continue
		}
		if len(e.Cpu.UserStack) == 0 && len(e.Cpu.KernelStack) == 0 {
			continue
		}
		profile.AddSample(stackFromCpu(e.Cpu), e.Cpu.TimestampNs)
	}
	return profile
}

// BuildLockProfile folds lock-contention events into a LockProfile,
// skipping events with an empty stack trace (§4.2).
func BuildLockProfile(evts []events.Event) *events.LockProfile {
	profile := events.NewLockProfile()
	for i := range evts {
		e := evts[i]
		if e.Kind != events.KindLock {
			continue
		}
		if len(e.Lock.StackTrace) == 0 {
			continue
		}
		profile.AddContention(e.Lock.LockAddr, stackFromLock(e.Lock), e.Lock.WaitTimeNs, e.Lock.TimestampNs)
	}
	return profile
}

// BuildSyscallProfile folds syscall-completion events into a
// SyscallProfile. Syscalls have no stack, so there is no empty-stack skip
// here; every syscall event contributes.
func BuildSyscallProfile(evts []events.Event) *events.SyscallProfile {
	profile := events.NewSyscallProfile()
	for i := range evts {
		e := evts[i]
		if e.Kind != events.KindSyscall {
			continue
		}
		profile.AddSyscall(e.Syscall.SyscallID, syscallName(e.Syscall.SyscallID), e.Syscall.DurationNs, e.Syscall.ReturnValue)
	}
	return profile
}
