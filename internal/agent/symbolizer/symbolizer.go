//go:build linux

package symbolizer

import (
	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/events"
)

// SymbolResolver is the synchronous flavor used for final profile
// symbolization (§4.3): it reuses one parsed process table across calls,
// alongside the shared kernel table and IP→Frame cache. The table's ELF
// file handle is closed at the end of each symbolization pass; the parsed
// DWARF and symbol-table data stay in memory and are reused.
type SymbolResolver struct {
	kernel   *kernelTable
	cache    *frameCache
	logger   zerolog.Logger
	pid      int
	table    *processTable
	tableErr error
}

// NewSymbolResolver builds a resolver with a kernel symbol table loaded
// up front. Kernel table load failure (e.g. missing CAP_SYSLOG) degrades to
// hex placeholders for kernel IPs rather than failing construction, per the
// §4.3 error policy.
func NewSymbolResolver(logger zerolog.Logger) *SymbolResolver {
	kernel, err := loadKernelTable(logger)
	if err != nil {
		logger.Warn().Err(err).Msg("symbolizer: kernel symbol table unavailable")
		kernel = nil
	}
	return &SymbolResolver{kernel: kernel, cache: newFrameCache(), logger: logger}
}

// SymbolizeEvents resolves every unresolved IP carried by evts and fills in
// each event's parallel symbol arrays, per §4.3. targetPid == nil triggers
// the system-wide fallback scan.
func (r *SymbolResolver) SymbolizeEvents(evts []events.Event, targetPid *int) {
	var allIPs []uint64
	for i := range evts {
		allIPs = append(allIPs, evts[i].CombinedIPs()...)
	}
	symbolizeIPs(allIPs, targetPid, r.kernel, r.openPersistentTable(targetPid), r.cache, r.logger)
	for i := range evts {
		symbolizeEvent(&evts[i], r.cache)
	}
}

// openPersistentTable lazily opens one process table and hands the same
// table back on later calls for the same pid. A nil targetPid
// delegates to the system-wide opener, which is always transient.
func (r *SymbolResolver) openPersistentTable(targetPid *int) userTableOpener {
	if targetPid == nil {
		return openProcessTable
	}
	return func(pid int) (*processTable, error) {
		if r.table != nil && r.pid == pid {
			return r.table, nil
		}
		if r.tableErr != nil && r.pid == pid {
			return nil, r.tableErr
		}
		table, err := openProcessTable(pid, r.logger)
		r.pid = pid
		r.table = table
		r.tableErr = err
		return table, err
	}
}

// Close releases the resolver's persistent process table, if one is open.
func (r *SymbolResolver) Close() error {
	if r.table != nil {
		return r.table.close()
	}
	return nil
}

// SymbolCache is the Send-safe flavor used on the streaming pusher's hot
// path (§4.3): it holds only the IP→Frame cache and the kernel table, never
// a process handle, so nothing non-Send crosses a goroutine suspension
// point between pusher ticks.
type SymbolCache struct {
	kernel *kernelTable
	cache  *frameCache
	logger zerolog.Logger
}

// NewSymbolCache builds a cache-only symbolizer, loading the kernel table
// once up front the same way SymbolResolver does.
func NewSymbolCache(logger zerolog.Logger) *SymbolCache {
	kernel, err := loadKernelTable(logger)
	if err != nil {
		logger.Warn().Err(err).Msg("symbolizer: kernel symbol table unavailable")
		kernel = nil
	}
	return &SymbolCache{kernel: kernel, cache: newFrameCache(), logger: logger}
}

// SymbolizeEvents resolves and fills symbols exactly like SymbolResolver,
// but opens (and immediately closes) a transient process table per call
// instead of holding one open.
func (c *SymbolCache) SymbolizeEvents(evts []events.Event, targetPid *int) {
	var allIPs []uint64
	for i := range evts {
		allIPs = append(allIPs, evts[i].CombinedIPs()...)
	}
	opener := func(pid int) (*processTable, error) { return openProcessTable(pid, c.logger) }
	symbolizeIPs(allIPs, targetPid, c.kernel, opener, c.cache, c.logger)
	for i := range evts {
		symbolizeEvent(&evts[i], c.cache)
	}
}
