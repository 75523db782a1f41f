package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/aperture-systems/aperture/internal/aggregator/aggregate"
	"github.com/aperture-systems/aperture/internal/aggregator/diff"
)

type diffRequest struct {
	BaselineAgentID   string `json:"baseline_agent_id"`
	BaselineStartNs   int64  `json:"baseline_start_ns"`
	BaselineEndNs     int64  `json:"baseline_end_ns"`
	ComparisonAgentID string `json:"comparison_agent_id"`
	ComparisonStartNs int64  `json:"comparison_start_ns"`
	ComparisonEndNs   int64  `json:"comparison_end_ns"`
	EventType         string `json:"event_type"`
	Limit             int    `json:"limit"`
}

type diffResponse struct {
	ResultJSON json.RawMessage `json:"result_json"`
	Error      string          `json:"error"`
}

// handleAPIDiff computes a baseline/comparison delta. It requires a
// configured store: diffing directly against the volatile ring buffer
// would compare whatever happens to still be resident, not the
// caller's requested time ranges (§4.9, §4.11).
func (s *Server) handleAPIDiff(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost {
		return writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}
	if s.store == nil {
		return writeJSON(w, http.StatusServiceUnavailable, diffResponse{
			ResultJSON: json.RawMessage(`{}`),
			Error:      "storage not configured",
		})
	}

	var req diffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	limit := clampLimit(req.Limit)

	baselinePayloads := s.fetchPayloads(r.Context(), req.BaselineAgentID, req.BaselineStartNs, req.BaselineEndNs, limit)
	comparisonPayloads := s.fetchPayloads(r.Context(), req.ComparisonAgentID, req.ComparisonStartNs, req.ComparisonEndNs, limit)

	baseline := aggregate.AggregateBatches(baselinePayloads, s.logger)
	comparison := aggregate.AggregateBatches(comparisonPayloads, s.logger)

	eventType := req.EventType
	if eventType == "" {
		eventType = "cpu"
	}

	var result any
	switch eventType {
	case "cpu":
		result = diff.DiffCpu(baseline.Cpu, comparison.Cpu)
	case "lock":
		result = diff.DiffLock(baseline.Lock, comparison.Lock)
	case "syscall":
		result = diff.DiffSyscall(baseline.Syscall, comparison.Syscall)
	default:
		return writeJSON(w, http.StatusBadRequest, diffResponse{
			ResultJSON: json.RawMessage(`""`),
			Error:      "event_type must be cpu, lock, or syscall, got " + eventType,
		})
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return writeJSON(w, http.StatusInternalServerError, diffResponse{ResultJSON: json.RawMessage(`""`), Error: err.Error()})
	}
	return writeJSON(w, http.StatusOK, diffResponse{ResultJSON: resultJSON})
}
