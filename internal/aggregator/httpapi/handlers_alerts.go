package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aperture-systems/aperture/internal/aggregator/alerts"
)

type createRuleRequest struct {
	Name      string  `json:"name"`
	Metric    string  `json:"metric"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
	Severity  string  `json:"severity"`
}

type createRuleResponse struct {
	ID string `json:"id"`
}

type rulesResponse struct {
	Rules []alerts.Rule `json:"rules"`
}

// handleAlerts lists rules (GET), creates one (POST), or deletes one
// (DELETE, id as a query param) (§4.12).
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) int {
	switch r.Method {
	case http.MethodGet:
		return writeJSON(w, http.StatusOK, rulesResponse{Rules: s.alerts.ListRules()})

	case http.MethodPost:
		var req createRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		id := s.alerts.CreateRule(req.Name, alerts.Metric(req.Metric), alerts.Operator(req.Operator), req.Threshold, alerts.Severity(req.Severity))
		return writeJSON(w, http.StatusOK, createRuleResponse{ID: id})

	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if !s.alerts.DeleteRule(id) {
			return writeJSON(w, http.StatusNotFound, errorResponse{Error: "rule not found"})
		}
		return writeJSON(w, http.StatusOK, struct {
			Deleted bool `json:"deleted"`
		}{Deleted: true})

	case http.MethodPatch:
		id := r.URL.Query().Get("id")
		enabled, found := s.alerts.ToggleRule(id)
		if !found {
			return writeJSON(w, http.StatusNotFound, errorResponse{Error: "rule not found"})
		}
		return writeJSON(w, http.StatusOK, struct {
			Enabled bool `json:"enabled"`
		}{Enabled: enabled})

	default:
		return writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}
}

type historyResponse struct {
	History []alerts.Event `json:"history"`
}

// handleAlertHistory returns fired alert events, newest first, capped by
// an optional limit query param.
func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) int {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	return writeJSON(w, http.StatusOK, historyResponse{History: s.alerts.ListHistory(limit)})
}

// handleAlertEvaluate builds a metric snapshot from the current
// buffer/store/metrics state and evaluates every enabled rule against it
// (§4.12).
func (s *Server) handleAlertEvaluate(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost {
		return writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}

	snap := s.metrics.Snapshot()
	pushTotal := snap.PushOK + snap.PushErr
	var pushErrorRate float64
	if pushTotal > 0 {
		pushErrorRate = float64(snap.PushErr) / float64(pushTotal)
	}

	fired := s.alerts.Evaluate(alerts.Snapshot{
		BufferUtilization:     s.buffer.Utilization(),
		PushErrorRate:         pushErrorRate,
		PushErrorsTotal:       float64(snap.PushErr),
		ClickhouseFlushErrors: float64(snap.ClickhouseFlushErr),
		ClickhousePendingRows: float64(snap.ClickhousePendingRow),
		EventThroughput:       float64(snap.PushEventsTotal),
	})
	return writeJSON(w, http.StatusOK, struct {
		Fired []alerts.Event `json:"fired"`
	}{Fired: fired})
}
