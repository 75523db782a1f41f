package httpapi

import (
	"net/http"
	"strconv"
)

type batchInfoJSON struct {
	AgentID      string `json:"agent_id"`
	Sequence     uint64 `json:"sequence"`
	EventCount   uint64 `json:"event_count"`
	ReceivedAtNs int64  `json:"received_at_ns"`
}

type batchesResponse struct {
	Batches []batchInfoJSON `json:"batches"`
	Error   string          `json:"error"`
}

// handleAPIBatches lists ring-buffer batches, optionally filtered by
// agent_id, defaulting to 100 most recent (§4.11).
func (s *Server) handleAPIBatches(w http.ResponseWriter, r *http.Request) int {
	agentID := r.URL.Query().Get("agent_id")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	batches := s.buffer.Query(agentID, limit)
	out := make([]batchInfoJSON, len(batches))
	for i, b := range batches {
		out[i] = batchInfoJSON{AgentID: b.AgentID, Sequence: b.Sequence, EventCount: b.EventCount, ReceivedAtNs: b.ReceivedAtNs}
	}
	return writeJSON(w, http.StatusOK, batchesResponse{Batches: out})
}
