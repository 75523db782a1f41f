package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/aperture-systems/aperture/internal/aggregator/aggregate"
)

// fetchPayloads tries the store first (5s timeout), falling back to the
// in-memory buffer on timeout, error, or an empty result, matching the
// aggregator's gRPC surface (§4.11).
func (s *Server) fetchPayloads(ctx context.Context, agentID string, startNs, endNs int64, limit int) []string {
	if s.store != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, storeFetchTimeout)
		batches, err := s.store.FetchPayloads(fetchCtx, agentID, startNs/1_000_000, endNs/1_000_000, limit)
		cancel()
		if err == nil && len(batches) > 0 {
			out := make([]string, len(batches))
			for i, b := range batches {
				out[i] = base64.StdEncoding.EncodeToString(b.Payload)
			}
			return out
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("httpapi: store fetch failed, falling back to buffer")
		}
	}

	buffered := s.buffer.Query(agentID, limit)
	out := make([]string, len(buffered))
	for i, b := range buffered {
		out[i] = base64.StdEncoding.EncodeToString(b.Payload)
	}
	return out
}

// clampLimit applies the API's default page size (500) and caps it at
// the aggregation engine's hard limit (§4.8, §4.11).
func clampLimit(limit int) int {
	if limit <= 0 {
		limit = 500
	}
	if limit > aggregate.MaxAggregateBatchLimit {
		limit = aggregate.MaxAggregateBatchLimit
	}
	return limit
}

type aggregateRequest struct {
	AgentID     string `json:"agent_id"`
	TimeStartNs int64  `json:"time_start_ns"`
	TimeEndNs   int64  `json:"time_end_ns"`
	Limit       int    `json:"limit"`
	EventType   string `json:"event_type"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleAPIAggregate aggregates matching batches and flattens the result
// to JSON, with skipped_batches folded into the same object (§4.8, §4.11).
func (s *Server) handleAPIAggregate(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost {
		return writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}

	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	limit := clampLimit(req.Limit)
	payloads := s.fetchPayloads(r.Context(), req.AgentID, req.TimeStartNs, req.TimeEndNs, limit)

	result := aggregate.AggregateBatches(payloads, s.logger)
	aggregate.FilterByType(&result, req.EventType)

	body, err := json.Marshal(result.ToJSON())
	if err != nil {
		return writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return http.StatusOK
}
