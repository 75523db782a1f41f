package grpcapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/aggregator/aggregate"
	"github.com/aperture-systems/aperture/internal/aggregator/buffer"
	"github.com/aperture-systems/aperture/internal/aggregator/diff"
	"github.com/aperture-systems/aperture/internal/aggregator/metrics"
	"github.com/aperture-systems/aperture/internal/aggregator/store"
	"github.com/aperture-systems/aperture/internal/wire"
)

// storeFetchTimeout bounds Aggregate/Diff's store lookups (§4.7, §5).
const storeFetchTimeout = 5 * time.Second

// Server implements AggregatorServer over the ring buffer and persistent
// store (§4.10).
type Server struct {
	buffer  *buffer.Buffer
	store   *store.Store
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// New builds a Server. store and reg may be nil: a nil store falls back
// to buffer-only reads; a nil reg simply skips metrics recording.
func New(buf *buffer.Buffer, st *store.Store, reg *metrics.Registry, logger zerolog.Logger) *Server {
	return &Server{buffer: buf, store: st, metrics: reg, logger: logger.With().Str("component", "grpcapi").Logger()}
}

var _ AggregatorServer = (*Server)(nil)

// Push appends the batch to the ring buffer and enqueues it to the store,
// reporting backpressure once buffer utilization exceeds 0.8 (§4.10).
func (s *Server) Push(ctx context.Context, req *PushRequest) (*PushResponse, error) {
	start := time.Now()
	s.buffer.Push(req.AgentID, req.Sequence, req.Payload)
	count := eventCountOf(req.Payload)
	if s.store != nil {
		s.store.WriteBatch(req.AgentID, req.Sequence, time.Now().UnixNano(), count, req.Payload)
	}
	if s.metrics != nil {
		s.metrics.ObservePush(true, count, time.Since(start).Seconds())
	}

	return &PushResponse{OK: true, Backpressure: s.buffer.Backpressure()}, nil
}

func eventCountOf(payload []byte) uint64 {
	msg, err := wire.Decode(payload)
	if err != nil {
		return 0
	}
	return uint64(len(msg.Events))
}

// Query returns ring-buffer batches only.
func (s *Server) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	batches := s.buffer.Query(req.AgentID, req.Limit)
	out := make([]BatchInfo, len(batches))
	for i, b := range batches {
		out[i] = BatchInfo{AgentID: b.AgentID, Sequence: b.Sequence, EventCount: b.EventCount, ReceivedAtNs: b.ReceivedAtNs}
	}
	return &QueryResponse{Batches: out}, nil
}

// QueryStorage returns persisted batches, falling back to an empty result
// if no store is configured.
func (s *Server) QueryStorage(ctx context.Context, req *QueryStorageRequest) (*QueryStorageResponse, error) {
	if s.store == nil {
		return &QueryStorageResponse{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeFetchTimeout)
	defer cancel()

	batches, err := s.store.Query(ctx, req.AgentID, req.TimeStartNs/1_000_000, req.TimeEndNs/1_000_000, req.Limit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("grpcapi: store query failed")
		return &QueryStorageResponse{}, nil
	}
	out := make([]BatchInfo, len(batches))
	for i, b := range batches {
		out[i] = BatchInfo{AgentID: b.AgentID, Sequence: b.Sequence, EventCount: b.EventCount, ReceivedAtNs: b.ReceivedAtMs * 1_000_000}
	}
	return &QueryStorageResponse{Batches: out}, nil
}

// fetchPayloadsWithFallback tries the store first (5s timeout), falling
// back to the in-memory buffer on timeout, error, or an empty result
// (§4.11 "API layer ... tries the store first").
func (s *Server) fetchPayloadsWithFallback(ctx context.Context, agentID string, startNs, endNs int64, limit int) []string {
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
			s.logger.Warn().Err(err).Msg("grpcapi: store fetch failed, falling back to buffer")
		}
	}

	buffered := s.buffer.Query(agentID, limit)
	out := make([]string, len(buffered))
	for i, b := range buffered {
		out[i] = base64.StdEncoding.EncodeToString(b.Payload)
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > aggregate.MaxAggregateBatchLimit {
		return aggregate.MaxAggregateBatchLimit
	}
	return limit
}

// Aggregate fetches matching payloads (store-first, buffer-fallback),
// aggregates them, filters by event type, and flattens to JSON (§4.8,
// §4.10).
func (s *Server) Aggregate(ctx context.Context, req *AggregateRequest) (*AggregateResponse, error) {
	limit := clampLimit(req.Limit)
	payloads := s.fetchPayloadsWithFallback(ctx, req.AgentID, req.TimeStartNs, req.TimeEndNs, limit)

	result := aggregate.AggregateBatches(payloads, s.logger)
	aggregate.FilterByType(&result, req.EventType)

	j, err := json.Marshal(result.ToJSON())
	if err != nil {
		return &AggregateResponse{Error: fmt.Sprintf("marshal result: %v", err)}, nil
	}
	return &AggregateResponse{ResultJSON: j, TotalEvents: result.TotalEvents}, nil
}

// Diff fetches and aggregates the baseline and comparison ranges
// independently, then computes a per-event-type delta (§4.9, §4.10).
func (s *Server) Diff(ctx context.Context, req *DiffRequest) (*DiffResponse, error) {
	limit := clampLimit(req.Limit)

	baselinePayloads := s.fetchPayloadsWithFallback(ctx, req.BaselineAgentID, req.BaselineStartNs, req.BaselineEndNs, limit)
	comparisonPayloads := s.fetchPayloadsWithFallback(ctx, req.ComparisonAgentID, req.ComparisonStartNs, req.ComparisonEndNs, limit)

	baseline := aggregate.AggregateBatches(baselinePayloads, s.logger)
	comparison := aggregate.AggregateBatches(comparisonPayloads, s.logger)

	var result any
	switch req.EventType {
	case "cpu":
		result = diff.DiffCpu(baseline.Cpu, comparison.Cpu)
	case "lock":
		result = diff.DiffLock(baseline.Lock, comparison.Lock)
	case "syscall":
		result = diff.DiffSyscall(baseline.Syscall, comparison.Syscall)
	default:
		return &DiffResponse{Error: fmt.Sprintf("diff: unknown event_type %q (want cpu, lock, or syscall)", req.EventType)}, nil
	}

	j, err := json.Marshal(result)
	if err != nil {
		return &DiffResponse{Error: fmt.Sprintf("marshal result: %v", err)}, nil
	}
	return &DiffResponse{ResultJSON: j}, nil
}
