//go:build linux

// Package pusher implements the agent's streaming push loop (spec §4.5): a
// single cooperative goroutine per profiling mode that periodically drains
// a collector, symbolizes in place, and pushes the batch to the
// aggregator, adapting its interval to server-reported backpressure.
package pusher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/agent/collector"
	"github.com/aperture-systems/aperture/internal/agent/symbolizer"
	"github.com/aperture-systems/aperture/internal/events"
	"github.com/aperture-systems/aperture/internal/retry"
	"github.com/aperture-systems/aperture/internal/wire"
)

const (
	maxPushInterval   = 30 * time.Second
	retryInitialDelay = 500 * time.Millisecond
	retryMaxDelay     = 2 * time.Second
	maxPushAttempts   = 3
)

// Response carries what the aggregator reported about one Push RPC.
type Response struct {
	OK           bool
	Backpressure bool
}

// errSingleEventTooLarge is returned by splitPayload when a payload holding
// only one event is still rejected as too large; there is nothing left to
// split, so the caller must give up on the batch.
var errSingleEventTooLarge = errors.New("pusher: single event payload exceeds aggregator size limit")

// Client is the transport the pusher pushes wire-encoded batches over.
// Satisfied by the gRPC aggregator client; a fake implementation drives the
// pusher's unit tests.
type Client interface {
	Push(ctx context.Context, payload []byte) (Response, error)
	Close() error
}

// Connector lazily establishes a Client connection. The pusher calls it with
// a 5-second timeout context. No per-request timeout is applied to Push
// calls: periodic pushes run under the Run context, and only the final
// flush is bounded (10 seconds).
type Connector func(ctx context.Context) (Client, error)

// Pusher drains one collector on a ticker and streams batches to the
// aggregator, per §4.5.
type Pusher struct {
	connect         Connector
	collector       *collector.Collector
	symbolizer      *symbolizer.SymbolCache
	targetPid       *int
	initialInterval time.Duration
	interval        time.Duration
	sequence        uint64
	logger          zerolog.Logger

	client Client
}

// New builds a Pusher. initialInterval is the configured push_interval
// (typically 5s, or 10s under the low-overhead preset).
func New(connect Connector, c *collector.Collector, cache *symbolizer.SymbolCache, targetPid *int, initialInterval time.Duration, logger zerolog.Logger) *Pusher {
	return &Pusher{
		connect:         connect,
		collector:       c,
		symbolizer:      cache,
		targetPid:       targetPid,
		initialInterval: initialInterval,
		interval:        initialInterval,
		logger:          logger.With().Str("component", "pusher").Logger(),
	}
}

// Run loops until ctx is cancelled, then performs the final best-effort
// drain-and-push described in §4.5's shutdown sequence (invariant P1: every
// event added before shutdown must be visible to this last push).
func (p *Pusher) Run(ctx context.Context) {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.finalFlush()
			return
		case <-timer.C:
			p.tick(ctx)
			timer.Reset(p.interval)
		}
	}
}

func (p *Pusher) tick(ctx context.Context) {
	pending := p.collector.TakePending()
	if len(pending) == 0 {
		return
	}
	p.pushBatch(ctx, pending)
}

// finalFlush pushes the collector's full event log rather than draining the
// take_pending cursor, per §4.2's literal "profile_events() — full copy for
// final flush." Events already sent by an earlier tick() are pushed again
// here; this is the spec's stated behavior, not an oversight.
func (p *Pusher) finalFlush() {
	pending := p.collector.ProfileEvents()
	if len(pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.pushBatch(ctx, pending)
}

func (p *Pusher) pushBatch(ctx context.Context, pending []events.Event) {
	p.symbolizer.SymbolizeEvents(pending, p.targetPid)

	p.sequence++
	payload := wire.Encode(wire.NewMessage(p.sequence, pending))

	resp, err := p.pushWithRetry(ctx, payload)
	if err != nil {
		p.logger.Warn().Err(err).Int("events", len(pending)).Msg("pusher: final push attempt failed, dropping batch")
		return
	}
	p.adjustInterval(resp.Backpressure)
}

// adjustInterval implements §4.5's backpressure rule: doubling capped at
// 30s on backpressure, reset to the configured initial value otherwise.
func (p *Pusher) adjustInterval(backpressure bool) {
	if backpressure {
		next := p.interval * 2
		if next > maxPushInterval {
			next = maxPushInterval
		}
		p.interval = next
		return
	}
	p.interval = p.initialInterval
}

// pushWithRetry implements §4.5's push-with-retry algorithm: a FIFO work
// queue seeded with one payload, split in half on a "message too large"
// response (re-enqueued at the head), connection-error detection that
// drops the cached client, and up to 3 attempts per payload with 500ms and
// then 1s of backoff between them. A "too large" rejection is not retried
// as is; it goes straight to the split.
func (p *Pusher) pushWithRetry(ctx context.Context, payload []byte) (Response, error) {
	queue := [][]byte{payload}
	var last Response
	var lastErr error

	for len(queue) > 0 {
		batch := queue[0]
		queue = queue[1:]

		resp, err := p.sendWithBackoff(ctx, batch)
		if err != nil {
			if isTooLargeError(err) {
				halves, splitErr := splitPayload(batch)
				if splitErr == nil {
					queue = append(halves, queue...)
					continue
				}
			}
			lastErr = err
			continue
		}
		last = resp
	}
	return last, lastErr
}

func (p *Pusher) sendWithBackoff(ctx context.Context, payload []byte) (Response, error) {
	var resp Response
	cfg := retry.Config{MaxRetries: maxPushAttempts, InitialBackoff: retryInitialDelay, MaxBackoff: retryMaxDelay}
	err := retry.Do(ctx, cfg, func() error {
		client, cerr := p.client0()
		if cerr != nil {
			return cerr
		}
		r, serr := client.Push(ctx, payload)
		if serr != nil {
			if isConnectionError(serr) {
				p.dropConnection()
			}
			return serr
		}
		resp = r
		return nil
	}, func(err error) bool { return !isTooLargeError(err) })
	return resp, err
}

// client0 returns the cached client, connecting lazily if none is open.
func (p *Pusher) client0() (Client, error) {
	if p.client != nil {
		return p.client, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *Pusher) dropConnection() {
	if p.client != nil {
		_ = p.client.Close()
		p.client = nil
	}
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection") || strings.Contains(msg, "Connection") || strings.Contains(msg, "unavailable")
}

func isTooLargeError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too large") || strings.Contains(msg, "resourceexhausted")
}

// splitPayload decodes payload, splits its events in half, and re-encodes
// both halves. Returns an error if the payload carries a single event (per
// §4.5 step 4, a single-event payload that is still too large propagates
// the error instead of being split further).
func splitPayload(payload []byte) ([][]byte, error) {
	msg, err := wire.Decode(payload)
	if err != nil {
		return nil, err
	}
	if len(msg.Events) <= 1 {
		return nil, errSingleEventTooLarge
	}
	mid := len(msg.Events) / 2
	first := wire.Encode(wire.NewMessage(msg.Sequence, msg.Events[:mid]))
	second := wire.Encode(wire.NewMessage(msg.Sequence, msg.Events[mid:]))
	return [][]byte{first, second}, nil
}
