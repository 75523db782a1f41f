package grpcapi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/aggregator/aggregate"
	"github.com/aperture-systems/aperture/internal/aggregator/buffer"
	"github.com/aperture-systems/aperture/internal/aggregator/diff"
	"github.com/aperture-systems/aperture/internal/aggregator/metrics"
	"github.com/aperture-systems/aperture/internal/events"
	"github.com/aperture-systems/aperture/internal/wire"
)

func cpuPayload(t *testing.T, stacks ...[]uint64) []byte {
	t.Helper()
	var evts []events.Event
	for i, s := range stacks {
		evts = append(evts, events.Event{
			Kind: events.KindCpuSample,
			Cpu:  &events.CpuSample{Common: events.Common{TimestampNs: uint64(i)}, UserStack: s},
		})
	}
	return wire.Encode(wire.NewMessage(1, evts))
}

func newTestServer() *Server {
	return New(buffer.New(100), nil, metrics.New(), zerolog.Nop())
}

func TestPush_AppendsToBufferAndReportsNoBackpressureWhenEmpty(t *testing.T) {
	s := newTestServer()
	resp, err := s.Push(context.Background(), &PushRequest{AgentID: "host-1", Sequence: 1, Payload: cpuPayload(t, []uint64{0x1000})})
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if !resp.OK || resp.Backpressure {
		t.Errorf("resp = %+v, want ok=true backpressure=false", resp)
	}
	if s.buffer.Len() != 1 {
		t.Errorf("buffer.Len() = %d, want 1", s.buffer.Len())
	}
}

func TestPush_ReportsBackpressureAboveUtilizationThreshold(t *testing.T) {
	s := New(buffer.New(2), nil, metrics.New(), zerolog.Nop())
	for i := 0; i < 2; i++ {
		if _, err := s.Push(context.Background(), &PushRequest{AgentID: "a", Sequence: uint64(i), Payload: cpuPayload(t, []uint64{0x1000})}); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	resp, err := s.Push(context.Background(), &PushRequest{AgentID: "a", Sequence: 2, Payload: cpuPayload(t, []uint64{0x1000})})
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if !resp.Backpressure {
		t.Error("Backpressure = false, want true once utilization exceeds 0.8")
	}
}

func TestQuery_ReturnsOnlyBufferedBatches(t *testing.T) {
	s := newTestServer()
	_, _ = s.Push(context.Background(), &PushRequest{AgentID: "a", Sequence: 1, Payload: cpuPayload(t, []uint64{0x1000})})

	resp, err := s.Query(context.Background(), &QueryRequest{Limit: 10})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(resp.Batches) != 1 || resp.Batches[0].AgentID != "a" {
		t.Fatalf("Query() = %+v", resp.Batches)
	}
}

func TestQueryStorage_ReturnsEmptyWithoutStore(t *testing.T) {
	s := newTestServer()
	resp, err := s.QueryStorage(context.Background(), &QueryStorageRequest{Limit: 10})
	if err != nil {
		t.Fatalf("QueryStorage() error = %v", err)
	}
	if len(resp.Batches) != 0 {
		t.Errorf("Batches = %+v, want empty when no store configured", resp.Batches)
	}
}

func TestAggregate_FallsBackToBufferAndFiltersByType(t *testing.T) {
	s := newTestServer()
	payload := cpuPayload(t, []uint64{0x1000}, []uint64{0x1000})
	if _, err := s.Push(context.Background(), &PushRequest{AgentID: "a", Sequence: 1, Payload: payload}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	resp, err := s.Aggregate(context.Background(), &AggregateRequest{Limit: 10, EventType: "cpu"})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("Aggregate() error field = %q", resp.Error)
	}
	if resp.TotalEvents != 2 {
		t.Errorf("TotalEvents = %d, want 2", resp.TotalEvents)
	}

	var parsed aggregate.ResultJSON
	if err := json.Unmarshal(resp.ResultJSON, &parsed); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if parsed.Cpu == nil || parsed.Cpu.TotalSamples != 2 {
		t.Errorf("parsed.Cpu = %+v, want total_samples 2", parsed.Cpu)
	}
}

func TestDiff_UnknownEventTypeReturnsErrorField(t *testing.T) {
	s := newTestServer()
	resp, err := s.Diff(context.Background(), &DiffRequest{EventType: "bogus", Limit: 10})
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if resp.Error == "" {
		t.Error("expected a non-empty Error field for an unsupported event_type")
	}
}

func TestDiff_CpuComparesBaselineAndComparisonBuffers(t *testing.T) {
	s := newTestServer()
	if _, err := s.Push(context.Background(), &PushRequest{AgentID: "baseline", Sequence: 1, Payload: cpuPayload(t, []uint64{0x1000})}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if _, err := s.Push(context.Background(), &PushRequest{AgentID: "comparison", Sequence: 1, Payload: cpuPayload(t, []uint64{0x1000}, []uint64{0x1000}, []uint64{0x1000})}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	resp, err := s.Diff(context.Background(), &DiffRequest{
		BaselineAgentID:   "baseline",
		ComparisonAgentID: "comparison",
		EventType:         "cpu",
		Limit:             10,
	})
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("Diff() error field = %q", resp.Error)
	}

	var parsed diff.CpuDiff
	if err := json.Unmarshal(resp.ResultJSON, &parsed); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if len(parsed.Stacks) != 1 || parsed.Stacks[0].Delta != 2 {
		t.Errorf("Stacks = %+v, want one stack with delta 2", parsed.Stacks)
	}
}

func TestEventCountOf_ZeroOnDecodeFailure(t *testing.T) {
	if got := eventCountOf([]byte{0xff, 0xff, 0xff}); got != 0 {
		t.Errorf("eventCountOf(garbage) = %d, want 0", got)
	}
}
