package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleAPIAggregate_FiltersByEventType(t *testing.T) {
	s, handler := newTestServer()
	s.buffer.Push("host-1", 1, cpuPayload(t, []uint64{0x1000}, []uint64{0x2000}))

	body, _ := json.Marshal(aggregateRequest{EventType: "cpu"})
	req := httptest.NewRequest(http.MethodPost, "/api/aggregate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if result["cpu"] == nil {
		t.Errorf("result = %+v, want a cpu field", result)
	}
	if result["lock"] != nil {
		t.Errorf("result = %+v, want lock filtered out", result)
	}
}

func TestHandleAPIAggregate_RejectsNonPost(t *testing.T) {
	_, handler := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/aggregate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleAPIAggregate_MalformedBodyReturnsBadRequest(t *testing.T) {
	_, handler := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/aggregate", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
