package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/pprof/profile"

	"github.com/aperture-systems/aperture/internal/aggregator/aggregate"
	"github.com/aperture-systems/aperture/internal/events"
)

const exportDefaultLimit = 1000

// handleExportJSON returns a full aggregate as a downloadable JSON file
// (§4.11, "Brendan Gregg format" sibling export).
func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) int {
	limit := exportDefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	eventType := r.URL.Query().Get("event_type")

	payloads := s.fetchPayloads(r.Context(), "", 0, 0, clampLimit(limit))
	result := aggregate.AggregateBatches(payloads, s.logger)
	if eventType != "" {
		aggregate.FilterByType(&result, eventType)
	}

	body, err := json.MarshalIndent(result.ToJSON(), "", "  ")
	if err != nil {
		return writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="aperture-profile.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return http.StatusOK
}

// handleExportCollapsed renders the CPU profile in Brendan Gregg's
// collapsed-stack format: `frame1;frame2;...;frameN count` per line,
// consumable by flamegraph.pl, speedscope, and Pyroscope (§4.11).
func (s *Server) handleExportCollapsed(w http.ResponseWriter, r *http.Request) int {
	limit := exportDefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	payloads := s.fetchPayloads(r.Context(), "", 0, 0, clampLimit(limit))
	result := aggregate.AggregateBatches(payloads, s.logger)

	if result.Cpu == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("No CPU profile data available"))
		return http.StatusNotFound
	}

	var sb strings.Builder
	for _, entry := range result.Cpu.Samples {
		folded := entry.Stack.FoldedString()
		if folded == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s %d\n", folded, entry.Count)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="aperture-collapsed.txt"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
	return http.StatusOK
}

// handleExportPprof renders the CPU profile as a gzipped pprof
// profile.proto, for `go tool pprof` and anything else in that ecosystem
// (§4.11 export family; the collapsed/JSON exports above cover the
// flamegraph and web-UI cases, this one covers the pprof tool case).
func (s *Server) handleExportPprof(w http.ResponseWriter, r *http.Request) int {
	limit := exportDefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	payloads := s.fetchPayloads(r.Context(), "", 0, 0, clampLimit(limit))
	result := aggregate.AggregateBatches(payloads, s.logger)

	if result.Cpu == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("No CPU profile data available"))
		return http.StatusNotFound
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="aperture-profile.pb.gz"`)
	w.WriteHeader(http.StatusOK)
	if err := cpuProfileToPprof(result.Cpu).Write(w); err != nil {
		s.logger.Warn().Err(err).Msg("httpapi: write pprof profile")
	}
	return http.StatusOK
}

// cpuProfileToPprof converts an aggregated CPU profile into a pprof
// profile.Profile, deduplicating functions and locations by frame name.
// Stacks are stored innermost-first (events.Stack's convention), which is
// also the leaf-first order profile.Sample.Location expects.
func cpuProfileToPprof(cpu *events.CpuProfile) *profile.Profile {
	p := &profile.Profile{
		SampleType:    []*profile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType:    &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:        int64(cpu.SamplePeriodNs),
		TimeNanos:     int64(cpu.StartTimeNs),
		DurationNanos: int64(cpu.EndTimeNs - cpu.StartTimeNs),
	}

	locByName := make(map[string]*profile.Location)
	var nextFuncID, nextLocID uint64 = 1, 1

	for _, entry := range cpu.Samples {
		locs := make([]*profile.Location, 0, len(entry.Stack))
		for _, f := range entry.Stack {
			name := fmt.Sprintf("0x%x", f.IP)
			if f.Function != nil {
				name = *f.Function
			}
			loc, ok := locByName[name]
			if !ok {
				fn := &profile.Function{ID: nextFuncID, Name: name, SystemName: name}
				nextFuncID++
				p.Function = append(p.Function, fn)
				loc = &profile.Location{ID: nextLocID, Address: f.IP, Line: []profile.Line{{Function: fn}}}
				nextLocID++
				locByName[name] = loc
				p.Location = append(p.Location, loc)
			}
			locs = append(locs, loc)
		}
		p.Sample = append(p.Sample, &profile.Sample{Location: locs, Value: []int64{int64(entry.Count)}})
	}
	return p
}
