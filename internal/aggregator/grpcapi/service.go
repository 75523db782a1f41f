package grpcapi

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
)

// PushRequest carries one agent's wire-encoded batch (§4.10).
type PushRequest struct {
	AgentID  string `json:"agent_id"`
	Sequence uint64 `json:"sequence"`
	Payload  []byte `json:"payload"`
}

// PushResponse reports ingest outcome and backpressure state.
type PushResponse struct {
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
	Backpressure bool   `json:"backpressure"`
}

// BatchInfo is one stored or buffered batch's metadata, no payload.
type BatchInfo struct {
	AgentID      string `json:"agent_id"`
	Sequence     uint64 `json:"sequence"`
	EventCount   uint64 `json:"event_count"`
	ReceivedAtNs int64  `json:"received_at_ns"`
}

// QueryRequest selects ring-buffer batches.
type QueryRequest struct {
	AgentID string `json:"agent_id,omitempty"`
	Limit   int    `json:"limit"`
}

// QueryResponse is the ring-buffer query result.
type QueryResponse struct {
	Batches []BatchInfo `json:"batches"`
}

// QueryStorageRequest selects persisted batches by time range.
type QueryStorageRequest struct {
	AgentID     string `json:"agent_id,omitempty"`
	TimeStartNs int64  `json:"time_start_ns,omitempty"`
	TimeEndNs   int64  `json:"time_end_ns,omitempty"`
	Limit       int    `json:"limit"`
}

// QueryStorageResponse is the persistent store query result.
type QueryStorageResponse struct {
	Batches []BatchInfo `json:"batches"`
}

// AggregateRequest selects and aggregates stored batches.
type AggregateRequest struct {
	AgentID     string `json:"agent_id,omitempty"`
	TimeStartNs int64  `json:"time_start_ns,omitempty"`
	TimeEndNs   int64  `json:"time_end_ns,omitempty"`
	Limit       int    `json:"limit"`
	EventType   string `json:"event_type,omitempty"`
}

// AggregateResponse carries the flattened, JSON-encoded aggregate result.
type AggregateResponse struct {
	ResultJSON  json.RawMessage `json:"result_json"`
	TotalEvents uint64          `json:"total_events"`
	Error       string          `json:"error,omitempty"`
}

// DiffRequest selects two time ranges to compare.
type DiffRequest struct {
	BaselineAgentID   string `json:"baseline_agent_id,omitempty"`
	BaselineStartNs   int64  `json:"baseline_start_ns,omitempty"`
	BaselineEndNs     int64  `json:"baseline_end_ns,omitempty"`
	ComparisonAgentID string `json:"comparison_agent_id,omitempty"`
	ComparisonStartNs int64  `json:"comparison_start_ns,omitempty"`
	ComparisonEndNs   int64  `json:"comparison_end_ns,omitempty"`
	EventType         string `json:"event_type"`
	Limit             int    `json:"limit"`
}

// DiffResponse carries the flattened, JSON-encoded diff result.
type DiffResponse struct {
	ResultJSON json.RawMessage `json:"result_json"`
	Error      string          `json:"error,omitempty"`
}

// AggregatorServer is the aperture.aggregator.v1.Aggregator service
// surface (§4.10): five methods, no generated stubs (§B) — ServiceDesc
// below wires them onto a real grpc.Server by hand.
type AggregatorServer interface {
	Push(ctx context.Context, req *PushRequest) (*PushResponse, error)
	Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error)
	QueryStorage(ctx context.Context, req *QueryStorageRequest) (*QueryStorageResponse, error)
	Aggregate(ctx context.Context, req *AggregateRequest) (*AggregateResponse, error)
	Diff(ctx context.Context, req *DiffRequest) (*DiffResponse, error)
}

const serviceName = "aperture.aggregator.v1.Aggregator"

func unaryHandler[Req any, Resp any](call func(AggregatorServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		s := srv.(AggregatorServer)
		if interceptor == nil {
			return call(s, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/unary"}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// ServiceDesc describes the Aggregator service's five RPCs to grpc-go
// without a generated .proto binding.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AggregatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Push",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return unaryHandler[PushRequest, PushResponse](AggregatorServer.Push)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "Query",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return unaryHandler[QueryRequest, QueryResponse](AggregatorServer.Query)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "QueryStorage",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return unaryHandler[QueryStorageRequest, QueryStorageResponse](AggregatorServer.QueryStorage)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "Aggregate",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return unaryHandler[AggregateRequest, AggregateResponse](AggregatorServer.Aggregate)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "Diff",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return unaryHandler[DiffRequest, DiffResponse](AggregatorServer.Diff)(srv, ctx, dec, interceptor)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "aperture/aggregator/v1/aggregator.proto",
}

// RegisterAggregatorServer registers srv on s the way generated code
// would, but by hand.
func RegisterAggregatorServer(s grpc.ServiceRegistrar, srv AggregatorServer) {
	s.RegisterService(&ServiceDesc, srv)
}
