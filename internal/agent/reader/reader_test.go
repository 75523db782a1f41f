//go:build linux

package reader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/agent/collector"
)

func encodeCPURecord(rec cpuSampleRecord) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, rec)
	return buf.Bytes()
}

type fakeStackResolver struct {
	stacks map[int32][]uint64
}

func (f *fakeStackResolver) Lookup(stackID int32) ([]uint64, error) {
	return f.stacks[stackID], nil
}

func newTestReader(kind Kind, stacks StackResolver) *CPUReader {
	return &CPUReader{
		cpuID:  0,
		kind:   kind,
		stacks: stacks,
		target: collector.New(),
		offset: MonotonicOffset{offsetNs: 0},
		logger: zerolog.Nop(),
	}
}

func TestCommString_TrimsAtNull(t *testing.T) {
	raw := [16]byte{'b', 'a', 's', 'h', 0, 'x', 'x'}
	if got := commString(raw); got != "bash" {
		t.Errorf("commString = %q, want bash", got)
	}
}

func TestCommString_FullWidthNoTrailingNull(t *testing.T) {
	var raw [16]byte
	copy(raw[:], "0123456789abcdef")
	if got := commString(raw); got != "0123456789abcdef" {
		t.Errorf("commString = %q, want full 16 bytes", got)
	}
}

func TestMonotonicOffset_Apply(t *testing.T) {
	offset := MonotonicOffset{offsetNs: 1000}
	if got := offset.Apply(5000); got != 6000 {
		t.Errorf("Apply(5000) = %d, want 6000", got)
	}
}

func TestCPUReader_LookupStack_NegativeIDReturnsNil(t *testing.T) {
	r := newTestReader(KindCPU, &fakeStackResolver{stacks: map[int32][]uint64{0: {0x1}}})
	if got := r.lookupStack(-1); got != nil {
		t.Errorf("lookupStack(-1) = %v, want nil", got)
	}
}

func TestCPUReader_LookupStack_ResolvesFromTable(t *testing.T) {
	r := newTestReader(KindCPU, &fakeStackResolver{stacks: map[int32][]uint64{3: {0x1000, 0x2000}}})
	got := r.lookupStack(3)
	if len(got) != 2 || got[0] != 0x1000 {
		t.Errorf("lookupStack(3) = %v, want [0x1000, 0x2000]", got)
	}
}

func TestCPUReader_ParseCPUSample(t *testing.T) {
	r := newTestReader(KindCPU, &fakeStackResolver{stacks: map[int32][]uint64{
		1: {0x1000},
		2: {0xffff000000000000},
	}})
	rec := cpuSampleRecord{
		TimestampNs:   5000,
		Pid:           10,
		Tid:           11,
		CPU:           2,
		UserStackID:   1,
		KernelStackID: 2,
	}
	copy(rec.Comm[:], "worker")

	raw := encodeCPURecord(rec)

	e, ok := r.parseCPUSample(raw)
	if !ok {
		t.Fatal("parseCPUSample() = false, want true")
	}
	if e.Cpu.Pid != 10 || e.Cpu.Tid != 11 || e.Cpu.CPUID != 2 {
		t.Errorf("Cpu = %+v", e.Cpu)
	}
	if e.Cpu.Comm != "worker" {
		t.Errorf("Comm = %q, want worker", e.Cpu.Comm)
	}
	if len(e.Cpu.UserStack) != 1 || e.Cpu.UserStack[0] != 0x1000 {
		t.Errorf("UserStack = %v", e.Cpu.UserStack)
	}
	if len(e.Cpu.KernelStack) != 1 || e.Cpu.KernelStack[0] != 0xffff000000000000 {
		t.Errorf("KernelStack = %v", e.Cpu.KernelStack)
	}
}
