package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleAPIHealth_ReportsHealthyBelowUtilizationThreshold(t *testing.T) {
	s, handler := newTestServer()
	s.buffer.Push("host-1", 1, cpuPayload(t, []uint64{0x1000}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp apiHealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", resp.Status)
	}
	if resp.BufferBatches != 1 {
		t.Errorf("BufferBatches = %d, want 1", resp.BufferBatches)
	}
	if resp.StorageEnabled {
		t.Error("StorageEnabled = true, want false (no store configured)")
	}
}

func TestHandleHealthz_AlwaysOK(t *testing.T) {
	_, handler := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHandleMetrics_ServesPrometheusTextFormat(t *testing.T) {
	_, handler := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; version=0.0.4" {
		t.Errorf("Content-Type = %q, want text/plain; version=0.0.4", ct)
	}
}
