//go:build linux

package symbolizer

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/events"
)

func testKernelTable() *kernelTable {
	return &kernelTable{
		logger: zerolog.Nop(),
		symbols: []kernelSymbol{
			{Address: 0xffffffff81000000, Name: "start_kernel"},
			{Address: 0xffffffff81001000, Name: "secondary_startup_64"},
			{Address: 0xffffffffb0000000, Name: "module_func", Module: "test_module"},
		},
	}
}

func TestKernelTable_Resolve(t *testing.T) {
	k := testKernelTable()
	cases := []struct {
		addr uint64
		want string
	}{
		{0xffffffff81000000, "start_kernel"},
		{0xffffffff81000500, "start_kernel"},
		{0xffffffff81001000, "secondary_startup_64"},
		{0xffffffffb0000100, "module_func [test_module]"},
		{0x1, ""},
	}
	for _, tc := range cases {
		if got := k.resolve(tc.addr); got != tc.want {
			t.Errorf("resolve(%#x) = %q, want %q", tc.addr, got, tc.want)
		}
	}
}

func TestFrameCache_ConcurrentAccess(t *testing.T) {
	cache := newFrameCache()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.put(uint64(n), events.UnresolvedFrame(uint64(n)))
				cache.get(uint64(n))
			}
		}(i)
	}
	wg.Wait()
}

func TestSymbolizeIPs_KernelOnly(t *testing.T) {
	kernel := testKernelTable()
	cache := newFrameCache()
	opener := func(pid int) (*processTable, error) { return nil, errNoSuchProcess }

	ips := []uint64{0xffffffff81000000, 0xffffffffb0000100}
	symbolizeIPs(ips, nil, kernel, opener, cache, zerolog.Nop())

	frame, ok := cache.get(0xffffffff81000000)
	if !ok || !frame.IsSymbolized() || *frame.Function != "start_kernel" {
		t.Errorf("frame = %+v, want resolved start_kernel", frame)
	}
	frame, ok = cache.get(0xffffffffb0000100)
	if !ok || !frame.IsSymbolized() || *frame.Function != "module_func" || frame.Module == nil || *frame.Module != "test_module" {
		t.Errorf("frame = %+v, want resolved module_func [test_module]", frame)
	}
}

func TestSymbolizeIPs_UnresolvedFallsBackToHexPlaceholder(t *testing.T) {
	cache := newFrameCache()
	opener := func(pid int) (*processTable, error) { return nil, errNoSuchProcess }
	userIP := uint64(0x1000)

	symbolizeIPs([]uint64{userIP}, nil, nil, opener, cache, zerolog.Nop())

	syms := applySymbols([]uint64{userIP}, cache)
	if len(syms) != 1 || syms[0] == nil || *syms[0] != "0x1000" {
		t.Errorf("syms = %v, want hex placeholder", syms)
	}
}

func TestApplySymbols_EmptyStackReturnsNil(t *testing.T) {
	if got := applySymbols(nil, newFrameCache()); got != nil {
		t.Errorf("applySymbols(nil) = %v, want nil", got)
	}
}

func TestApplySymbols_KernelFrameKeepsModuleSuffix(t *testing.T) {
	kernel := testKernelTable()
	cache := newFrameCache()
	opener := func(pid int) (*processTable, error) { return nil, errNoSuchProcess }

	moduleIP := uint64(0xffffffffb0000100)
	symbolizeIPs([]uint64{moduleIP}, nil, kernel, opener, cache, zerolog.Nop())

	syms := applySymbols([]uint64{moduleIP}, cache)
	if len(syms) != 1 || syms[0] == nil || *syms[0] != "module_func [test_module]" {
		t.Errorf("syms = %v, want [\"module_func [test_module]\"]", syms)
	}
}

var errNoSuchProcess = &processNotFoundError{}

type processNotFoundError struct{}

func (e *processNotFoundError) Error() string { return "no such process" }
