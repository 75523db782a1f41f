//go:build linux

package symbolizer

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// userSymbol is one resolved user-space address.
type userSymbol struct {
	Function string
	File     string
	Line     int
}

// processTable symbolizes addresses within one target process's address
// space, combining DWARF line info (when present) with the ELF symbol
// table, and correcting for PIE load-address skew.
type processTable struct {
	elfFile         *elf.File
	dwarfData       *dwarf.Data
	symtab          []elf.Symbol
	runtimeLoadAddr uint64
	elfBaseAddr     uint64
	logger          zerolog.Logger
}

// openProcessTable opens the executable backing pid and prepares it for
// symbol resolution. Short-lived: SymbolCache opens one of these per call
// and discards it immediately after, so no non-Send handle is held across
// suspension points on the pusher's hot path.
func openProcessTable(pid int, logger zerolog.Logger) (*processTable, error) {
	binaryPath, err := binaryPathForPID(pid)
	if err != nil {
		return nil, err
	}

	f, err := elf.Open(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("open binary %s: %w", binaryPath, err)
	}

	var elfBaseAddr uint64
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_LOAD && prog.Flags&elf.PF_X != 0 {
			elfBaseAddr = prog.Vaddr
			break
		}
	}

	runtimeLoadAddr, err := runtimeLoadAddress(pid, binaryPath)
	if err != nil {
		logger.Debug().Err(err).Int("pid", pid).Msg("runtime load address unavailable, PIE offsets may be wrong")
	}

	t := &processTable{
		elfFile:         f,
		runtimeLoadAddr: runtimeLoadAddr,
		elfBaseAddr:     elfBaseAddr,
		logger:          logger.With().Str("component", "symbolizer").Int("pid", pid).Logger(),
	}

	if dwarfData, err := f.DWARF(); err == nil {
		t.dwarfData = dwarfData
	}
	if symbols, err := f.Symbols(); err == nil {
		t.symtab = symbols
	}
	if t.dwarfData == nil && len(t.symtab) == 0 {
		f.Close() // nolint:errcheck
		return nil, fmt.Errorf("binary %s has no debug info or symbol table", binaryPath)
	}
	return t, nil
}

func (t *processTable) close() error {
	if t.elfFile != nil {
		return t.elfFile.Close()
	}
	return nil
}

// resolve maps a runtime user-space address to a symbol, preferring DWARF
// (gives file:line) and falling back to the raw symbol table.
func (t *processTable) resolve(addr uint64) (userSymbol, bool) {
	fileOffset := addr
	if t.runtimeLoadAddr > 0 {
		fileOffset = addr - t.runtimeLoadAddr + t.elfBaseAddr
	}

	if t.dwarfData != nil {
		if sym, ok := t.resolveDWARF(fileOffset); ok {
			return sym, true
		}
	}
	if len(t.symtab) > 0 {
		if sym, ok := t.resolveSymtab(fileOffset); ok {
			return sym, true
		}
	}
	return userSymbol{}, false
}

func (t *processTable) resolveDWARF(addr uint64) (userSymbol, bool) {
	reader := t.dwarfData.Reader()
	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}
		nameAttr := entry.Val(dwarf.AttrName)
		if nameAttr == nil {
			continue
		}
		funcName, ok := nameAttr.(string)
		if !ok {
			continue
		}
		lowPC := entry.Val(dwarf.AttrLowpc)
		highPC := entry.Val(dwarf.AttrHighpc)
		if lowPC == nil || highPC == nil {
			continue
		}
		low, ok := lowPC.(uint64)
		if !ok {
			continue
		}
		var high uint64
		switch v := highPC.(type) {
		case uint64:
			high = v
		case int64:
			high = low + uint64(v)
		default:
			continue
		}
		if addr < low || addr >= high {
			continue
		}
		sym := userSymbol{Function: funcName}
		if lineReader, err := t.dwarfData.LineReader(entry); err == nil && lineReader != nil {
			var lineEntry dwarf.LineEntry
			if err := lineReader.SeekPC(addr, &lineEntry); err == nil {
				sym.File = lineEntry.File.Name
				sym.Line = lineEntry.Line
			}
		}
		return sym, true
	}
	return userSymbol{}, false
}

func (t *processTable) resolveSymtab(addr uint64) (userSymbol, bool) {
	for _, sym := range t.symtab {
		if addr >= sym.Value && addr < sym.Value+sym.Size {
			return userSymbol{Function: sym.Name}, true
		}
	}
	return userSymbol{}, false
}

func binaryPathForPID(pid int) (string, error) {
	target, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return "", fmt.Errorf("read binary path for pid %d: %w", pid, err)
	}
	return target, nil
}

// runtimeLoadAddress reads /proc/<pid>/maps to find the load address of a
// PIE binary's first executable mapping.
func runtimeLoadAddress(pid int, binaryPath string) (uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", pid)) // #nosec G304
	if err != nil {
		return 0, fmt.Errorf("read maps: %w", err)
	}

	actualPath := binaryPath
	if strings.Contains(binaryPath, "/proc/") && strings.HasSuffix(binaryPath, "/exe") {
		if resolved, err := os.Readlink(binaryPath); err == nil {
			actualPath = resolved
		}
	}

	for _, line := range strings.Split(string(data), "\n") {
		if line == "" || !strings.Contains(line, "r-xp") {
			continue
		}
		if !strings.Contains(line, actualPath) && !strings.HasSuffix(line, "/exe") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 1 {
			continue
		}
		addrParts := strings.Split(parts[0], "-")
		if len(addrParts) != 2 {
			continue
		}
		var addr uint64
		if _, err := fmt.Sscanf(addrParts[0], "%x", &addr); err != nil {
			continue
		}
		return addr, nil
	}
	return 0, fmt.Errorf("no executable mapping found for %s", actualPath)
}

// formatUserSymbol renders a resolved user symbol per the §4.3 encoding
// convention: "funcname" with no module qualifier (user binaries don't
// carry the kernel's [module] suffix).
func formatUserSymbol(sym userSymbol) string {
	return sym.Function
}

// listNumericPIDs enumerates /proc/<pid> entries for the system-wide
// fallback path (§4.3 step 3, target_pid == nil).
func listNumericPIDs() ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}
	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var pid int
		if _, err := fmt.Sscanf(e.Name(), "%d", &pid); err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
