//go:build linux

// Package symbolizer resolves instruction pointers collected by the probes
// into human-readable frames (spec §4.3): a kernel symbol table parsed from
// /proc/kallsyms, a per-process DWARF/ELF symbol table, and a system-wide
// fallback for samples whose owning process wasn't known up front.
package symbolizer

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// kernelSymbol is one /proc/kallsyms entry.
type kernelSymbol struct {
	Address uint64
	Name    string
	Module  string
}

// kernelTable resolves kernel addresses via binary search over a sorted
// /proc/kallsyms snapshot, loaded once and reused for the agent's lifetime.
type kernelTable struct {
	symbols []kernelSymbol
	logger  zerolog.Logger
}

func loadKernelTable(logger zerolog.Logger) (*kernelTable, error) {
	logger = logger.With().Str("component", "kernel_symbolizer").Logger()

	file, err := os.Open("/proc/kallsyms")
	if err != nil {
		return nil, fmt.Errorf("open /proc/kallsyms: %w (requires root or CAP_SYSLOG)", err)
	}
	defer file.Close() // nolint:errcheck

	var symbols []kernelSymbol
	zeroAddresses := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			continue
		}
		var addr uint64
		if _, err := fmt.Sscanf(parts[0], "%x", &addr); err != nil {
			continue
		}
		if addr == 0 {
			zeroAddresses++
			continue
		}
		var module string
		if len(parts) > 3 && strings.HasPrefix(parts[3], "[") && strings.HasSuffix(parts[3], "]") {
			module = strings.Trim(parts[3], "[]")
		}
		symbols = append(symbols, kernelSymbol{Address: addr, Name: parts[2], Module: module})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read /proc/kallsyms: %w", err)
	}
	if len(symbols) == 0 && zeroAddresses > 0 {
		return nil, fmt.Errorf("all kallsyms addresses are 0 (insufficient permissions)")
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no kernel symbols found in /proc/kallsyms")
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].Address < symbols[j].Address })

	logger.Info().Int("symbol_count", len(symbols)).Int("zero_addresses", zeroAddresses).
		Msg("kernel symbol table loaded")
	return &kernelTable{symbols: symbols, logger: logger}, nil
}

// resolve returns the formatted symbol for addr, per the §4.3 encoding
// convention, or "" if addr falls before the first known symbol.
func (k *kernelTable) resolve(addr uint64) string {
	idx := sort.Search(len(k.symbols), func(i int) bool { return k.symbols[i].Address > addr })
	if idx == 0 {
		return ""
	}
	sym := k.symbols[idx-1]
	if sym.Module != "" {
		return fmt.Sprintf("%s [%s]", sym.Name, sym.Module)
	}
	return sym.Name
}
