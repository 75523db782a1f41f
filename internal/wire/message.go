package wire

import "github.com/aperture-systems/aperture/internal/events"

// Message is the wire envelope carried inside a Batch's payload (§3, §4.1).
type Message struct {
	Version  uint32
	Sequence uint64
	Events   []events.Event
}

// NewMessage builds a Message stamped with the current protocol version.
func NewMessage(sequence uint64, evts []events.Event) Message {
	return Message{Version: PROTOCOL_VERSION, Sequence: sequence, Events: evts}
}

// Encode serializes m using the current schema and fixed-width encoding.
// This is the only encoding new agents ever produce; the variable-width and
// legacy-schema paths exist purely so Decode can read payloads from older
// agent builds.
func Encode(m Message) []byte {
	w := newFixedWriter()
	putMessageCurrent(w, m)
	return w.bytes()
}

// Decode parses a wire payload, trying in order: current schema/fixed-width,
// current schema/variable-width, legacy schema/fixed-width, legacy
// schema/variable-width (§4.1). A zero-length payload decodes to an empty
// Message rather than failing.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{Version: PROTOCOL_VERSION, Events: nil}, nil
	}

	if m, err := tryDecode(data, getMessageCurrent, newFixedReaderAdapter); err == nil {
		return m, nil
	}
	if m, err := tryDecode(data, getMessageCurrent, newVarintReaderAdapter); err == nil {
		return m, nil
	}
	if m, err := tryDecode(data, getMessageLegacy, newFixedReaderAdapter); err == nil {
		return m, nil
	}
	if m, err := tryDecode(data, getMessageLegacy, newVarintReaderAdapter); err == nil {
		return m, nil
	}
	return Message{}, ErrDecodeFailed
}

func newFixedReaderAdapter(buf []byte) reader  { return newFixedReader(buf) }
func newVarintReaderAdapter(buf []byte) reader { return newVarintReader(buf) }

func tryDecode(data []byte, get func(reader) (Message, error), mk func([]byte) reader) (m Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrTruncated
		}
	}()
	r := mk(data)
	m, err = get(r)
	if err != nil {
		return Message{}, err
	}
	if !r.done() {
		return Message{}, ErrTruncated
	}
	if m.Version != PROTOCOL_VERSION {
		return Message{}, ErrDecodeVersionMismatch
	}
	return m, nil
}

func putMessageCurrent(w writer, m Message) {
	w.putUint32(m.Version)
	w.putUint64(m.Sequence)
	w.putUint32(uint32(len(m.Events)))
	for _, e := range m.Events {
		putEventCurrent(w, e)
	}
}

func getMessageCurrent(r reader) (Message, error) {
	return getMessageGeneric(r, getEventCurrent)
}

func getMessageLegacy(r reader) (Message, error) {
	return getMessageGeneric(r, getEventLegacy)
}

// putMessageLegacy encodes m using the pre-symbol-array event shapes. Only
// ever used by tests to synthesize payloads from an older agent generation;
// real agents always encode with putMessageCurrent.
func putMessageLegacy(w writer, m Message) {
	w.putUint32(m.Version)
	w.putUint64(m.Sequence)
	w.putUint32(uint32(len(m.Events)))
	for _, e := range m.Events {
		putEventLegacy(w, e)
	}
}

func putEventLegacy(w writer, e events.Event) {
	w.putUint32(uint32(e.Kind))
	switch e.Kind {
	case events.KindCpuSample:
		putCommon(w, e.Cpu.Common)
		w.putUint32(e.Cpu.CPUID)
		putUint64Slice(w, e.Cpu.UserStack)
		putUint64Slice(w, e.Cpu.KernelStack)
	case events.KindLock:
		putCommon(w, e.Lock.Common)
		w.putUint64(e.Lock.LockAddr)
		w.putUint64(e.Lock.WaitTimeNs)
		w.putUint64(e.Lock.HoldTimeNs)
		putUint64Slice(w, e.Lock.StackTrace)
	case events.KindSyscall:
		putCommon(w, e.Syscall.Common)
		w.putUint32(e.Syscall.SyscallID)
		w.putUint64(e.Syscall.DurationNs)
		w.putInt64(e.Syscall.ReturnValue)
	case events.KindGpuKernel:
		putCommon(w, e.Gpu.Common)
		w.putString(e.Gpu.KernelName)
		w.putUint64(e.Gpu.DurationNs)
		w.putUint32(e.Gpu.GridSize)
		w.putUint32(e.Gpu.BlockSize)
	}
}

func getMessageGeneric(r reader, getEvent func(reader) (events.Event, error)) (Message, error) {
	version, err := r.getUint32()
	if err != nil {
		return Message{}, err
	}
	sequence, err := r.getUint64()
	if err != nil {
		return Message{}, err
	}
	count, err := r.getUint32()
	if err != nil {
		return Message{}, err
	}
	if count > 10_000_000 {
		return Message{}, ErrTruncated
	}
	evts := make([]events.Event, 0, count)
	for i := uint32(0); i < count; i++ {
		e, err := getEvent(r)
		if err != nil {
			return Message{}, err
		}
		evts = append(evts, e)
	}
	return Message{Version: version, Sequence: sequence, Events: evts}, nil
}

// --- event variant codec: current schema (with parallel symbol arrays) ---

func putEventCurrent(w writer, e events.Event) {
	w.putUint32(uint32(e.Kind))
	switch e.Kind {
	case events.KindCpuSample:
		putCommon(w, e.Cpu.Common)
		w.putUint32(e.Cpu.CPUID)
		putUint64Slice(w, e.Cpu.UserStack)
		putUint64Slice(w, e.Cpu.KernelStack)
		putOptStringSlice(w, e.Cpu.UserStackSymbols)
		putOptStringSlice(w, e.Cpu.KernelStackSymbols)
	case events.KindLock:
		putCommon(w, e.Lock.Common)
		w.putUint64(e.Lock.LockAddr)
		w.putUint64(e.Lock.WaitTimeNs)
		w.putUint64(e.Lock.HoldTimeNs)
		putUint64Slice(w, e.Lock.StackTrace)
		putOptStringSlice(w, e.Lock.StackSymbols)
	case events.KindSyscall:
		putCommon(w, e.Syscall.Common)
		w.putUint32(e.Syscall.SyscallID)
		w.putUint64(e.Syscall.DurationNs)
		w.putInt64(e.Syscall.ReturnValue)
	case events.KindGpuKernel:
		putCommon(w, e.Gpu.Common)
		w.putString(e.Gpu.KernelName)
		w.putUint64(e.Gpu.DurationNs)
		w.putUint32(e.Gpu.GridSize)
		w.putUint32(e.Gpu.BlockSize)
	}
}

func getEventCurrent(r reader) (events.Event, error) {
	tag, err := r.getUint32()
	if err != nil {
		return events.Event{}, err
	}
	kind := events.Kind(tag)
	switch kind {
	case events.KindCpuSample:
		common, err := getCommon(r)
		if err != nil {
			return events.Event{}, err
		}
		cpuID, err := r.getUint32()
		if err != nil {
			return events.Event{}, err
		}
		userStack, err := getUint64Slice(r)
		if err != nil {
			return events.Event{}, err
		}
		kernelStack, err := getUint64Slice(r)
		if err != nil {
			return events.Event{}, err
		}
		userSyms, err := getOptStringSlice(r)
		if err != nil {
			return events.Event{}, err
		}
		kernelSyms, err := getOptStringSlice(r)
		if err != nil {
			return events.Event{}, err
		}
		return events.Event{Kind: kind, Cpu: &events.CpuSample{
			Common: common, CPUID: cpuID, UserStack: userStack, KernelStack: kernelStack,
			UserStackSymbols: userSyms, KernelStackSymbols: kernelSyms,
		}}, nil
	case events.KindLock:
		common, err := getCommon(r)
		if err != nil {
			return events.Event{}, err
		}
		lockAddr, err := r.getUint64()
		if err != nil {
			return events.Event{}, err
		}
		waitNs, err := r.getUint64()
		if err != nil {
			return events.Event{}, err
		}
		holdNs, err := r.getUint64()
		if err != nil {
			return events.Event{}, err
		}
		stack, err := getUint64Slice(r)
		if err != nil {
			return events.Event{}, err
		}
		syms, err := getOptStringSlice(r)
		if err != nil {
			return events.Event{}, err
		}
		return events.Event{Kind: kind, Lock: &events.LockEvent{
			Common: common, LockAddr: lockAddr, WaitTimeNs: waitNs, HoldTimeNs: holdNs,
			StackTrace: stack, StackSymbols: syms,
		}}, nil
	case events.KindSyscall:
		return getSyscallEvent(r)
	case events.KindGpuKernel:
		return getGpuKernelEvent(r)
	default:
		return events.Event{}, ErrTruncated
	}
}

// getSyscallEvent and getGpuKernelEvent are schema-independent: neither
// variant gained fields when symbol arrays were added, so the legacy and
// current decoders share the same implementation.
func getSyscallEvent(r reader) (events.Event, error) {
	common, err := getCommon(r)
	if err != nil {
		return events.Event{}, err
	}
	syscallID, err := r.getUint32()
	if err != nil {
		return events.Event{}, err
	}
	durationNs, err := r.getUint64()
	if err != nil {
		return events.Event{}, err
	}
	retVal, err := r.getInt64()
	if err != nil {
		return events.Event{}, err
	}
	return events.Event{Kind: events.KindSyscall, Syscall: &events.SyscallEvent{
		Common: common, SyscallID: syscallID, DurationNs: durationNs, ReturnValue: retVal,
	}}, nil
}

func getGpuKernelEvent(r reader) (events.Event, error) {
	common, err := getCommon(r)
	if err != nil {
		return events.Event{}, err
	}
	name, err := r.getString()
	if err != nil {
		return events.Event{}, err
	}
	durationNs, err := r.getUint64()
	if err != nil {
		return events.Event{}, err
	}
	grid, err := r.getUint32()
	if err != nil {
		return events.Event{}, err
	}
	block, err := r.getUint32()
	if err != nil {
		return events.Event{}, err
	}
	return events.Event{Kind: events.KindGpuKernel, Gpu: &events.GpuKernelEvent{
		Common: common, KernelName: name, DurationNs: durationNs, GridSize: grid, BlockSize: block,
	}}, nil
}

// --- event variant codec: legacy schema (no symbol arrays) ----------------

func getEventLegacy(r reader) (events.Event, error) {
	tag, err := r.getUint32()
	if err != nil {
		return events.Event{}, err
	}
	kind := events.Kind(tag)
	switch kind {
	case events.KindCpuSample:
		common, err := getCommon(r)
		if err != nil {
			return events.Event{}, err
		}
		cpuID, err := r.getUint32()
		if err != nil {
			return events.Event{}, err
		}
		userStack, err := getUint64Slice(r)
		if err != nil {
			return events.Event{}, err
		}
		kernelStack, err := getUint64Slice(r)
		if err != nil {
			return events.Event{}, err
		}
		return events.Event{Kind: kind, Cpu: &events.CpuSample{
			Common: common, CPUID: cpuID, UserStack: userStack, KernelStack: kernelStack,
		}}, nil
	case events.KindLock:
		common, err := getCommon(r)
		if err != nil {
			return events.Event{}, err
		}
		lockAddr, err := r.getUint64()
		if err != nil {
			return events.Event{}, err
		}
		waitNs, err := r.getUint64()
		if err != nil {
			return events.Event{}, err
		}
		holdNs, err := r.getUint64()
		if err != nil {
			return events.Event{}, err
		}
		stack, err := getUint64Slice(r)
		if err != nil {
			return events.Event{}, err
		}
		return events.Event{Kind: kind, Lock: &events.LockEvent{
			Common: common, LockAddr: lockAddr, WaitTimeNs: waitNs, HoldTimeNs: holdNs, StackTrace: stack,
		}}, nil
	case events.KindSyscall:
		return getSyscallEvent(r)
	case events.KindGpuKernel:
		return getGpuKernelEvent(r)
	default:
		return events.Event{}, ErrTruncated
	}
}

// --- shared field helpers ---------------------------------------------------

func putCommon(w writer, c events.Common) {
	w.putUint64(c.TimestampNs)
	w.putUint32(c.Pid)
	w.putUint32(c.Tid)
	w.putString(c.Comm)
}

func getCommon(r reader) (events.Common, error) {
	ts, err := r.getUint64()
	if err != nil {
		return events.Common{}, err
	}
	pid, err := r.getUint32()
	if err != nil {
		return events.Common{}, err
	}
	tid, err := r.getUint32()
	if err != nil {
		return events.Common{}, err
	}
	comm, err := r.getString()
	if err != nil {
		return events.Common{}, err
	}
	return events.Common{TimestampNs: ts, Pid: pid, Tid: tid, Comm: comm}, nil
}

func putUint64Slice(w writer, vals []uint64) {
	w.putUint32(uint32(len(vals)))
	for _, v := range vals {
		w.putUint64(v)
	}
}

func getUint64Slice(r reader) ([]uint64, error) {
	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	if n > 10_000_000 {
		return nil, ErrTruncated
	}
	out := make([]uint64, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := r.getUint64()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func putOptStringSlice(w writer, vals []*string) {
	w.putUint32(uint32(len(vals)))
	for _, v := range vals {
		w.putOptString(v)
	}
}

func getOptStringSlice(r reader) ([]*string, error) {
	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	if n > 10_000_000 {
		return nil, ErrTruncated
	}
	out := make([]*string, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := r.getOptString()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
