//go:build linux

package pusher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/agent/collector"
	"github.com/aperture-systems/aperture/internal/agent/symbolizer"
	"github.com/aperture-systems/aperture/internal/events"
	"github.com/aperture-systems/aperture/internal/wire"
)

// fakeClient records every payload it receives and replays a scripted
// sequence of responses/errors, one per call.
type fakeClient struct {
	mu        sync.Mutex
	payloads  [][]byte
	responses []Response
	errs      []error
	closed    bool
	call      int
}

func (f *fakeClient) Push(_ context.Context, payload []byte) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	i := f.call
	f.call++
	if i < len(f.errs) && f.errs[i] != nil {
		return Response{}, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return Response{OK: true}, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func cpuEvent(ts uint64) events.Event {
	return events.Event{
		Kind: events.KindCpuSample,
		Cpu: &events.CpuSample{
			Common:    events.Common{TimestampNs: ts, Pid: 1, Tid: 1, Comm: "worker"},
			UserStack: []uint64{0x1000},
		},
	}
}

func newTestPusher(connect Connector) *Pusher {
	return New(connect, collector.New(), symbolizer.NewSymbolCache(zerolog.Nop()), nil, time.Second, zerolog.Nop())
}

func TestAdjustInterval_DoublesOnBackpressureCappedAt30s(t *testing.T) {
	p := newTestPusher(nil)
	p.initialInterval = 20 * time.Second
	p.interval = 20 * time.Second

	p.adjustInterval(true)
	if p.interval != 30*time.Second {
		t.Errorf("interval after first backpressure = %v, want capped 30s", p.interval)
	}

	p.adjustInterval(true)
	if p.interval != 30*time.Second {
		t.Errorf("interval after repeated backpressure = %v, want still capped 30s", p.interval)
	}
}

func TestAdjustInterval_ResetsToInitialWhenNoBackpressure(t *testing.T) {
	p := newTestPusher(nil)
	p.initialInterval = 5 * time.Second
	p.interval = 20 * time.Second

	p.adjustInterval(false)
	if p.interval != 5*time.Second {
		t.Errorf("interval = %v, want reset to initial 5s", p.interval)
	}
}

func TestPushBatch_SymbolizesAndIncrementsSequence(t *testing.T) {
	client := &fakeClient{responses: []Response{{OK: true}}}
	p := newTestPusher(func(context.Context) (Client, error) { return client, nil })

	p.pushBatch(context.Background(), []events.Event{cpuEvent(1)})

	if p.sequence != 1 {
		t.Errorf("sequence = %d, want 1", p.sequence)
	}
	if len(client.payloads) != 1 {
		t.Fatalf("expected 1 payload pushed, got %d", len(client.payloads))
	}
	msg, err := wire.Decode(client.payloads[0])
	if err != nil {
		t.Fatalf("decode pushed payload: %v", err)
	}
	if msg.Sequence != 1 || len(msg.Events) != 1 {
		t.Errorf("decoded message = %+v", msg)
	}
}

func TestPushBatch_BackpressureResponseGrowsInterval(t *testing.T) {
	client := &fakeClient{responses: []Response{{OK: true, Backpressure: true}}}
	p := newTestPusher(func(context.Context) (Client, error) { return client, nil })
	p.initialInterval = time.Second
	p.interval = time.Second

	p.pushBatch(context.Background(), []events.Event{cpuEvent(1)})

	if p.interval != 2*time.Second {
		t.Errorf("interval after backpressure push = %v, want 2s", p.interval)
	}
}

func TestPushWithRetry_RetriesThenSucceeds(t *testing.T) {
	client := &fakeClient{
		errs:      []error{errors.New("unavailable: connection refused"), nil},
		responses: []Response{{}, {OK: true}},
	}
	p := newTestPusher(func(context.Context) (Client, error) { return client, nil })

	resp, err := p.pushWithRetry(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("pushWithRetry error: %v", err)
	}
	if !resp.OK {
		t.Errorf("resp = %+v, want OK", resp)
	}
}

func TestPushWithRetry_ConnectionErrorDropsClient(t *testing.T) {
	client := &fakeClient{
		errs:      []error{errors.New("connection reset"), nil},
		responses: []Response{{}, {OK: true}},
	}
	p := newTestPusher(func(context.Context) (Client, error) { return client, nil })

	if _, err := p.pushWithRetry(context.Background(), []byte("payload")); err != nil {
		t.Fatalf("pushWithRetry error: %v", err)
	}
	if !client.closed {
		t.Errorf("expected the client to be closed after a connection error")
	}
}

func TestSplitPayload_HalvesMultiEventMessage(t *testing.T) {
	payload := wire.Encode(wire.NewMessage(1, []events.Event{cpuEvent(1), cpuEvent(2)}))

	halves, err := splitPayload(payload)
	if err != nil {
		t.Fatalf("splitPayload error: %v", err)
	}
	if len(halves) != 2 {
		t.Fatalf("halves = %d, want 2", len(halves))
	}
	for _, half := range halves {
		msg, err := wire.Decode(half)
		if err != nil {
			t.Fatalf("decode half: %v", err)
		}
		if len(msg.Events) != 1 {
			t.Errorf("half events = %d, want 1", len(msg.Events))
		}
	}
}

func TestSplitPayload_SingleEventReturnsErr(t *testing.T) {
	payload := wire.Encode(wire.NewMessage(1, []events.Event{cpuEvent(1)}))

	if _, err := splitPayload(payload); !errors.Is(err, errSingleEventTooLarge) {
		t.Errorf("splitPayload error = %v, want errSingleEventTooLarge", err)
	}
}

func TestPushWithRetry_TooLargeSplitsAndPushesBothHalves(t *testing.T) {
	client := &fakeClient{
		errs:      []error{errors.New("ResourceExhausted: message too large"), nil, nil},
		responses: []Response{{}, {OK: true}, {OK: true}},
	}
	p := newTestPusher(func(context.Context) (Client, error) { return client, nil })

	payload := wire.Encode(wire.NewMessage(1, []events.Event{cpuEvent(1), cpuEvent(2)}))
	if _, err := p.pushWithRetry(context.Background(), payload); err != nil {
		t.Fatalf("pushWithRetry error: %v", err)
	}
	if len(client.payloads) != 3 {
		t.Fatalf("expected 1 failed + 2 split pushes, got %d calls", len(client.payloads))
	}
}

func TestFinalFlush_UsesProfileEventsWithoutAdvancingCursor(t *testing.T) {
	client := &fakeClient{responses: []Response{{OK: true}}}
	p := newTestPusher(func(context.Context) (Client, error) { return client, nil })
	p.collector.Add(cpuEvent(1))

	p.finalFlush()

	if len(client.payloads) != 1 {
		t.Fatalf("expected final flush to push once, got %d", len(client.payloads))
	}
	msg, err := wire.Decode(client.payloads[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msg.Events) != 1 {
		t.Errorf("final flush events = %d, want 1", len(msg.Events))
	}
}

func TestRun_StopsAndFlushesOnCancel(t *testing.T) {
	client := &fakeClient{responses: []Response{{OK: true}}}
	p := newTestPusher(func(context.Context) (Client, error) { return client, nil })
	p.initialInterval = time.Hour
	p.interval = time.Hour
	p.collector.Add(cpuEvent(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if len(client.payloads) != 1 {
		t.Errorf("expected final flush push on cancellation, got %d pushes", len(client.payloads))
	}
}
