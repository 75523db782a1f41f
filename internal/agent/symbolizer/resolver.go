//go:build linux

package symbolizer

import (
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/events"
)

// frameCache maps a resolved instruction pointer to its Frame. Both
// SymbolResolver and SymbolCache share this cache's shape; they differ only
// in how (and how often) they open a target process's symbol table.
type frameCache struct {
	mu     sync.Mutex
	frames map[uint64]events.Frame
}

func newFrameCache() *frameCache {
	return &frameCache{frames: make(map[uint64]events.Frame)}
}

func (c *frameCache) get(ip uint64) (events.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.frames[ip]
	return f, ok
}

func (c *frameCache) put(ip uint64, f events.Frame) {
	c.mu.Lock()
	c.frames[ip] = f
	c.mu.Unlock()
}

// userTableOpener opens a process's symbol table on demand. SymbolResolver
// passes a closure over its persistent table; SymbolCache passes one that
// opens and discards a fresh table per call.
type userTableOpener func(pid int) (*processTable, error)

// symbolizeIPs resolves every IP in ips that isn't already cached, per the
// §4.3 algorithm: kernel/user partition by invariant S2, kernel IPs go
// through the shared kernel table, user IPs go through targetPid's process
// table or (targetPid == nil) the system-wide fallback scan. A failed
// resolution becomes a hex placeholder, never an error.
func symbolizeIPs(ips []uint64, targetPid *int, kernel *kernelTable, openUser userTableOpener, cache *frameCache, logger zerolog.Logger) {
	unresolved := make([]uint64, 0, len(ips))
	for _, ip := range ips {
		if _, ok := cache.get(ip); !ok {
			unresolved = append(unresolved, ip)
		}
	}
	if len(unresolved) == 0 {
		return
	}

	var kernelIPs, userIPs []uint64
	for _, ip := range unresolved {
		if events.IsKernelAddress(ip) {
			kernelIPs = append(kernelIPs, ip)
		} else {
			userIPs = append(userIPs, ip)
		}
	}

	for _, ip := range kernelIPs {
		if kernel == nil {
			cache.put(ip, events.UnresolvedFrame(ip))
			continue
		}
		sym := kernel.resolve(ip)
		if sym == "" {
			cache.put(ip, events.UnresolvedFrame(ip))
		} else {
			cache.put(ip, events.FrameFromSymbol(ip, sym))
		}
	}

	if len(userIPs) == 0 {
		return
	}

	if targetPid != nil {
		resolveUserIPsInProcess(userIPs, *targetPid, openUser, cache, logger)
		return
	}

	resolveUserIPsSystemWide(userIPs, openUser, cache, logger)
}

func resolveUserIPsInProcess(ips []uint64, pid int, openUser userTableOpener, cache *frameCache, logger zerolog.Logger) {
	table, err := openUser(pid)
	if err != nil {
		logger.Debug().Err(err).Int("pid", pid).Msg("symbolizer: failed to open process table")
		for _, ip := range ips {
			cache.put(ip, events.UnresolvedFrame(ip))
		}
		return
	}
	defer table.close() // nolint:errcheck

	for _, ip := range ips {
		if sym, ok := table.resolve(ip); ok {
			cache.put(ip, events.FrameFromSymbol(ip, formatUserSymbol(sym)))
		} else {
			cache.put(ip, events.UnresolvedFrame(ip))
		}
	}
}

// resolveUserIPsSystemWide implements the §4.3 step-3 fallback: enumerate
// every numeric /proc entry and try each process's address space in turn,
// shrinking the still-unresolved batch as addresses are symbolized. Best
// effort: remaining IPs become hex placeholders once PIDs are exhausted.
func resolveUserIPsSystemWide(ips []uint64, openUser userTableOpener, cache *frameCache, logger zerolog.Logger) {
	remaining := make(map[uint64]struct{}, len(ips))
	for _, ip := range ips {
		remaining[ip] = struct{}{}
	}

	pids, err := listNumericPIDs()
	if err != nil {
		logger.Debug().Err(err).Msg("symbolizer: system-wide fallback could not list /proc")
	} else {
		for _, pid := range pids {
			if len(remaining) == 0 {
				break
			}
			table, err := openUser(pid)
			if err != nil {
				continue
			}
			for ip := range remaining {
				if sym, ok := table.resolve(ip); ok {
					cache.put(ip, events.FrameFromSymbol(ip, formatUserSymbol(sym)))
					delete(remaining, ip)
				}
			}
			table.close() // nolint:errcheck
		}
	}

	for ip := range remaining {
		cache.put(ip, events.UnresolvedFrame(ip))
	}
}

// applySymbols returns one symbol string per IP in ips, in order, read from
// the cache. Every IP is guaranteed present after symbolizeIPs has run; a
// frame for which IsSymbolized reports false becomes a "0x<addr>" hex
// placeholder.
func applySymbols(ips []uint64, cache *frameCache) []*string {
	if len(ips) == 0 {
		return nil
	}
	out := make([]*string, len(ips))
	for i, ip := range ips {
		frame, ok := cache.get(ip)
		if !ok || !frame.IsSymbolized() {
			s := "0x" + strconv.FormatUint(ip, 16)
			out[i] = &s
			continue
		}
		s := frame.SymbolString()
		out[i] = &s
	}
	return out
}

// symbolizeEvent mutates e in place, populating its parallel symbol arrays
// from cache. Events with no address payload (Syscall, GpuKernel) are left
// untouched.
func symbolizeEvent(e *events.Event, cache *frameCache) {
	switch e.Kind {
	case events.KindCpuSample:
		e.Cpu.UserStackSymbols = applySymbols(e.Cpu.UserStack, cache)
		e.Cpu.KernelStackSymbols = applySymbols(e.Cpu.KernelStack, cache)
	case events.KindLock:
		e.Lock.StackSymbols = applySymbols(e.Lock.StackTrace, cache)
	}
}
