//go:build linux

package loader

import (
	"testing"

	"github.com/aperture-systems/aperture/internal/agent/reader"
)

func TestMapNames_CoversEveryProbeKind(t *testing.T) {
	for _, kind := range []reader.Kind{reader.KindCPU, reader.KindLock, reader.KindSyscall} {
		if _, ok := mapNames[kind]; !ok {
			t.Errorf("mapNames missing entry for kind %d", kind)
		}
	}
}

func TestOpenPinned_UnknownKindErrors(t *testing.T) {
	open := OpenPinned("/sys/fs/bpf/aperture")
	if _, err := open(reader.Kind(99)); err == nil {
		t.Error("open(99) error = nil, want error for unrecognized probe kind")
	}
}

func TestTrimTrailingZeros_StopsAtFirstZero(t *testing.T) {
	raw := make([]uint64, maxStackDepth)
	raw[0] = 0x400000
	raw[1] = 0x400100
	raw[2] = 0x400200

	got := trimTrailingZeros(raw)
	want := []uint64{0x400000, 0x400100, 0x400200}
	if len(got) != len(want) {
		t.Fatalf("trimTrailingZeros() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trimTrailingZeros() = %v, want %v", got, want)
		}
	}
}

func TestTrimTrailingZeros_FullDepthKeepsEverything(t *testing.T) {
	raw := make([]uint64, maxStackDepth)
	for i := range raw {
		raw[i] = uint64(i + 1)
	}
	if got := trimTrailingZeros(raw); len(got) != maxStackDepth {
		t.Fatalf("len(trimTrailingZeros()) = %d, want %d", len(got), maxStackDepth)
	}
}
