// Package events defines Aperture's event, frame, and profile data model
// (spec §3 DATA MODEL). An Event is a tagged variant over four probe kinds;
// a Stack is an ordered sequence of Frames produced by symbolization.
package events

// KernelAddressBoundary is the address above which an instruction pointer
// is classified as kernel-space (invariant S2). Addresses below this are
// user-space.
const KernelAddressBoundary uint64 = 0xFFFF_0000_0000_0000

// IsKernelAddress reports whether addr falls in the kernel half of the
// address space per invariant S2. This is the sole partitioning rule used
// to pick a symbolizer source.
func IsKernelAddress(addr uint64) bool {
	return addr >= KernelAddressBoundary
}

// Kind tags the variant carried by an Event. Order is the wire schema
// contract (§4.1): tag values must never be reordered, only appended to.
type Kind uint32

const (
	KindCpuSample Kind = iota
	KindLock
	KindSyscall
	KindGpuKernel
)

func (k Kind) String() string {
	switch k {
	case KindCpuSample:
		return "cpu"
	case KindLock:
		return "lock"
	case KindSyscall:
		return "syscall"
	case KindGpuKernel:
		return "gpu"
	default:
		return "unknown"
	}
}

// Common carries the fields present on every event kind (§3).
type Common struct {
	TimestampNs uint64
	Pid         uint32
	Tid         uint32
	Comm        string
}

// CpuSample is a single CPU profiling sample: a user stack, a kernel stack,
// and their parallel resolved-symbol arrays (invariant S1). A symbol array
// entry is nil when that individual frame could not be resolved; the array
// itself is empty when no symbolization has been attempted yet.
type CpuSample struct {
	Common
	CPUID              uint32
	UserStack          []uint64
	KernelStack        []uint64
	UserStackSymbols   []*string
	KernelStackSymbols []*string
}

// LockEvent is a single lock-contention sample with a combined user+kernel
// stack trace.
type LockEvent struct {
	Common
	LockAddr     uint64
	WaitTimeNs   uint64
	HoldTimeNs   uint64
	StackTrace   []uint64
	StackSymbols []*string
}

// SyscallEvent is a single syscall completion sample.
type SyscallEvent struct {
	Common
	SyscallID   uint32
	DurationNs  uint64
	ReturnValue int64
}

// GpuKernelEvent is reserved: carried on the wire but never aggregated (§3).
type GpuKernelEvent struct {
	Common
	KernelName string
	DurationNs uint64
	GridSize   uint32
	BlockSize  uint32
}

// Event is the tagged variant over the four probe kinds. Exactly one of
// Cpu/Lock/Syscall/Gpu is non-nil, selected by Kind.
type Event struct {
	Kind    Kind
	Cpu     *CpuSample
	Lock    *LockEvent
	Syscall *SyscallEvent
	Gpu     *GpuKernelEvent
}

// Timestamp returns the event's common timestamp regardless of kind.
func (e Event) Timestamp() uint64 {
	switch e.Kind {
	case KindCpuSample:
		return e.Cpu.TimestampNs
	case KindLock:
		return e.Lock.TimestampNs
	case KindSyscall:
		return e.Syscall.TimestampNs
	case KindGpuKernel:
		return e.Gpu.TimestampNs
	default:
		return 0
	}
}

// SymbolsConsistent reports whether a parallel symbol array satisfies
// invariant S1: its length is either zero ("all unknown") or exactly the
// length of the corresponding IP stack.
func SymbolsConsistent(symbols []*string, ips []uint64) bool {
	return len(symbols) == 0 || len(symbols) == len(ips)
}

// SymbolAt returns the resolved symbol for ips[idx], honoring invariant S1:
// an empty symbols array means every frame is unresolved.
func SymbolAt(symbols []*string, idx int) *string {
	if idx >= len(symbols) {
		return nil
	}
	return symbols[idx]
}

// CombinedIPs returns every instruction pointer an event carries (user
// stack then kernel stack, duplicates kept), without regard to
// user/kernel partitioning. Used by the symbolizer to
// discover the working set of unresolved addresses (§4.3 step 1).
func (e Event) CombinedIPs() []uint64 {
	switch e.Kind {
	case KindCpuSample:
		out := make([]uint64, 0, len(e.Cpu.UserStack)+len(e.Cpu.KernelStack))
		out = append(out, e.Cpu.UserStack...)
		out = append(out, e.Cpu.KernelStack...)
		return out
	case KindLock:
		return e.Lock.StackTrace
	default:
		return nil
	}
}
