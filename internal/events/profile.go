package events

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Frame is a single resolved (or unresolved) instruction pointer.
// IsSymbolized ⇔ Function is non-nil (§3).
type Frame struct {
	IP       uint64
	Function *string
	File     *string
	Line     *uint32
	Module   *string
}

// IsSymbolized reports whether the frame carries a resolved function name.
func (f Frame) IsSymbolized() bool {
	return f.Function != nil
}

// Equal compares two frames structurally over all fields, so two unresolved
// frames sharing an IP compare equal (§3).
func (f Frame) Equal(other Frame) bool {
	if f.IP != other.IP {
		return false
	}
	if !strPtrEqual(f.Function, other.Function) {
		return false
	}
	if !strPtrEqual(f.File, other.File) {
		return false
	}
	if !uint32PtrEqual(f.Line, other.Line) {
		return false
	}
	return strPtrEqual(f.Module, other.Module)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func uint32PtrEqual(a, b *uint32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// UnresolvedFrame builds a Frame from a bare IP with no symbol information.
func UnresolvedFrame(ip uint64) Frame {
	return Frame{IP: ip}
}

// FrameFromSymbol builds a Frame from a resolved symbol string produced by
// the symbolizer, per the §4.3 encoding convention: "funcname [module]" or
// "funcname". A symbol that is still a hex placeholder ("0x...") is treated
// as unresolved.
func FrameFromSymbol(ip uint64, symbol string) Frame {
	if symbol == "" || strings.HasPrefix(symbol, "0x") {
		return UnresolvedFrame(ip)
	}
	fn := symbol
	var module *string
	if idx := strings.LastIndex(symbol, " ["); idx >= 0 && strings.HasSuffix(symbol, "]") {
		fn = symbol[:idx]
		m := symbol[idx+2 : len(symbol)-1]
		module = &m
	}
	return Frame{IP: ip, Function: &fn, Module: module}
}

// SymbolString renders a symbolized Frame back into the §4.3 wire encoding
// ("funcname [module]" or "funcname"), the inverse of FrameFromSymbol. Only
// valid when IsSymbolized is true.
func (f Frame) SymbolString() string {
	if f.Module != nil {
		return *f.Function + " [" + *f.Module + "]"
	}
	return *f.Function
}

// Stack is an ordered sequence of Frames, innermost frame first.
type Stack []Frame

// Equal compares two stacks frame by frame.
func (s Stack) Equal(other Stack) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if !s[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Key returns a stable hash suitable for use as a Go map key. Slices are
// not directly comparable, so the aggregation and diff engines key their
// per-stack maps on this hash rather than the Stack value itself.
func (s Stack) Key() uint64 {
	h := xxh3.New()
	for _, f := range s {
		var ipBuf [8]byte
		putUint64LE(ipBuf[:], f.IP)
		_, _ = h.Write(ipBuf[:])
		if f.Function != nil {
			_, _ = h.WriteString(*f.Function)
		}
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// FoldedString renders the stack in Brendan Gregg's folded-stack format,
// outermost frame first (the stack is stored innermost-first, so this
// reverses it), semicolon-joined, with unresolved frames rendered as a hex
// placeholder.
func (s Stack) FoldedString() string {
	parts := make([]string, len(s))
	for i, f := range s {
		name := "0x" + strconv.FormatUint(f.IP, 16)
		if f.Function != nil {
			name = *f.Function
		}
		parts[len(s)-1-i] = name
	}
	return strings.Join(parts, ";")
}

// SyscallStats aggregates one syscall id's observations (§3).
type SyscallStats struct {
	Name             string
	Count            uint64
	TotalDurationNs  uint64
	MinDurationNs    uint64
	MaxDurationNs    uint64
	ErrorCount       uint64
	LatencyHistogram [30]uint64
}

// HistogramBucket computes bucket = min(29, floor(log2(d))) for d > 1, and
// bucket 0 for d ≤ 1 (§3, §8 histogram correctness property).
func HistogramBucket(durationNs uint64) int {
	if durationNs <= 1 {
		return 0
	}
	bucket := 0
	for v := durationNs; v > 1; v >>= 1 {
		bucket++
	}
	if bucket > 29 {
		bucket = 29
	}
	return bucket
}

// LockContention aggregates one (lock_addr, Stack) key's observations (§3).
type LockContention struct {
	LockAddr     uint64
	Stack        Stack
	Count        uint64
	TotalWaitNs  uint64
	MinWaitNs    uint64
	MaxWaitNs    uint64
}

// CpuProfile is the aggregate CPU sampling result (§3).
type CpuProfile struct {
	StartTimeNs    uint64
	EndTimeNs      uint64
	SamplePeriodNs uint64
	Samples        map[uint64]*CpuSampleEntry // keyed by Stack.Key()
	TotalSamples   uint64
}

// CpuSampleEntry is one distinct stack's accumulated sample count within a
// CpuProfile.
type CpuSampleEntry struct {
	Stack Stack
	Count uint64
}

// NewCpuProfile returns an empty CpuProfile ready for accumulation.
func NewCpuProfile() *CpuProfile {
	return &CpuProfile{Samples: make(map[uint64]*CpuSampleEntry)}
}

// AddSample folds one stack observation into the profile, extending the
// time range and incrementing the per-stack count.
func (p *CpuProfile) AddSample(stack Stack, timestampNs uint64) {
	if p.TotalSamples == 0 || timestampNs < p.StartTimeNs {
		p.StartTimeNs = timestampNs
	}
	if timestampNs > p.EndTimeNs {
		p.EndTimeNs = timestampNs
	}
	key := stack.Key()
	entry, ok := p.Samples[key]
	if !ok {
		entry = &CpuSampleEntry{Stack: stack}
		p.Samples[key] = entry
	}
	entry.Count++
	p.TotalSamples++
}

// LockProfile is the aggregate lock-contention result (§3).
type LockProfile struct {
	Contentions map[string]*LockContention // keyed by lock_addr:stackKey
	StartTimeNs uint64
	EndTimeNs   uint64
}

// NewLockProfile returns an empty LockProfile ready for accumulation.
func NewLockProfile() *LockProfile {
	return &LockProfile{Contentions: make(map[string]*LockContention)}
}

// AddContention folds one (lock_addr, stack) wait-time observation.
func (p *LockProfile) AddContention(lockAddr uint64, stack Stack, waitTimeNs, timestampNs uint64) {
	if p.EndTimeNs == 0 || timestampNs < p.StartTimeNs {
		p.StartTimeNs = timestampNs
	}
	if timestampNs > p.EndTimeNs {
		p.EndTimeNs = timestampNs
	}
	key := contentionKey(lockAddr, stack)
	c, ok := p.Contentions[key]
	if !ok {
		c = &LockContention{LockAddr: lockAddr, Stack: stack, MinWaitNs: ^uint64(0)}
		p.Contentions[key] = c
	}
	c.Count++
	c.TotalWaitNs += waitTimeNs
	if waitTimeNs < c.MinWaitNs {
		c.MinWaitNs = waitTimeNs
	}
	if waitTimeNs > c.MaxWaitNs {
		c.MaxWaitNs = waitTimeNs
	}
}

func contentionKey(lockAddr uint64, stack Stack) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(lockAddr, 16))
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatUint(stack.Key(), 16))
	return sb.String()
}

// SyscallProfile is the aggregate syscall-latency result (§3).
type SyscallProfile struct {
	Syscalls map[uint32]*SyscallStats
}

// NewSyscallProfile returns an empty SyscallProfile ready for accumulation.
func NewSyscallProfile() *SyscallProfile {
	return &SyscallProfile{Syscalls: make(map[uint32]*SyscallStats)}
}

// AddSyscall folds one syscall completion observation.
func (p *SyscallProfile) AddSyscall(id uint32, name string, durationNs uint64, returnValue int64) {
	s, ok := p.Syscalls[id]
	if !ok {
		s = &SyscallStats{Name: name, MinDurationNs: ^uint64(0)}
		p.Syscalls[id] = s
	}
	if s.Name == "" {
		s.Name = name
	}
	s.Count++
	s.TotalDurationNs += durationNs
	if durationNs < s.MinDurationNs {
		s.MinDurationNs = durationNs
	}
	if durationNs > s.MaxDurationNs {
		s.MaxDurationNs = durationNs
	}
	if returnValue < 0 {
		s.ErrorCount++
	}
	s.LatencyHistogram[HistogramBucket(durationNs)]++
}
