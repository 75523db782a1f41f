package httpapi

import "net/http"

type apiHealthResponse struct {
	Status                string  `json:"status"`
	BufferBatches         int     `json:"buffer_batches"`
	BufferUtilization     float64 `json:"buffer_utilization"`
	StorageEnabled        bool    `json:"storage_enabled"`
	PushTotalOK           uint64  `json:"push_total_ok"`
	PushTotalError        uint64  `json:"push_total_error"`
	PushEventsTotal       uint64  `json:"push_events_total"`
	ClickhouseFlushOK     uint64  `json:"clickhouse_flush_ok"`
	ClickhouseFlushError  uint64  `json:"clickhouse_flush_error"`
	ClickhousePendingRows int64   `json:"clickhouse_pending_rows"`
}

// handleAPIHealth reports buffer/storage/metrics health for the web UI
// (§4.11). "degraded" once buffer utilization crosses 0.95.
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) int {
	util := s.buffer.Utilization()
	status := "healthy"
	if util >= 0.95 {
		status = "degraded"
	}

	snap := s.metrics.Snapshot()
	return writeJSON(w, http.StatusOK, apiHealthResponse{
		Status:                status,
		BufferBatches:         s.buffer.Len(),
		BufferUtilization:     util,
		StorageEnabled:        s.store != nil,
		PushTotalOK:           snap.PushOK,
		PushTotalError:        snap.PushErr,
		PushEventsTotal:       snap.PushEventsTotal,
		ClickhouseFlushOK:     snap.ClickhouseFlushOK,
		ClickhouseFlushError:  snap.ClickhouseFlushErr,
		ClickhousePendingRows: snap.ClickhousePendingRow,
	})
}
