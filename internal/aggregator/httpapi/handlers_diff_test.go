package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/aggregator/alerts"
	"github.com/aperture-systems/aperture/internal/aggregator/buffer"
	"github.com/aperture-systems/aperture/internal/aggregator/metrics"
	"github.com/aperture-systems/aperture/internal/aggregator/store"
)

func TestHandleAPIDiff_ReturnsServiceUnavailableWithoutStore(t *testing.T) {
	_, handler := newTestServer()
	body, _ := json.Marshal(diffRequest{EventType: "cpu"})
	req := httptest.NewRequest(http.MethodPost, "/api/diff", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleAPIDiff_ComparesBaselineAndComparisonWhenStoreConfigured(t *testing.T) {
	st, err := store.Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(st.Shutdown)

	st.WriteBatch("baseline", 1, time.Now().UnixNano(), 1, cpuPayload(t, []uint64{0x1000}))
	st.WriteBatch("comparison", 1, time.Now().UnixNano(), 1, cpuPayload(t, []uint64{0x1000}, []uint64{0x1000}))

	_, handler := New(buffer.New(100), st, metrics.New(), alerts.New(), zerolog.Nop())

	body, _ := json.Marshal(diffRequest{BaselineAgentID: "baseline", ComparisonAgentID: "comparison", EventType: "cpu"})
	req := httptest.NewRequest(http.MethodPost, "/api/diff", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp diffResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp.Error != "" {
		t.Errorf("Error = %q, want empty", resp.Error)
	}
}

func TestHandleAPIDiff_RejectsNonPost(t *testing.T) {
	_, handler := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/diff", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
