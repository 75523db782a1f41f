//go:build linux

// Package grpcclient implements the agent side of the
// aperture.aggregator.v1.Aggregator transport (§4.10): a pusher.Client
// built on a real grpc.ClientConn using the hand-written "aperture-json"
// codec registered by the aggregator's grpcapi package, with no generated
// stubs on either end.
package grpcclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	_ "google.golang.org/grpc/encoding/gzip" // matches the server's gzip compressor registration
	"google.golang.org/grpc/metadata"

	"github.com/aperture-systems/aperture/internal/aggregator/grpcapi"
	"github.com/aperture-systems/aperture/internal/agent/pusher"
	"github.com/aperture-systems/aperture/internal/wire"
)

const bytesPerMB = 1024 * 1024

// codecSubtype is the content-subtype grpc-go derives from the codec's
// registered Name() ("aperture-json"), selected per call instead of as a
// package-wide default codec.
const codecSubtype = "aperture-json"

// Client wraps one grpc.ClientConn to the aggregator, satisfying
// pusher.Client. agentID is attached to every Push so the aggregator can
// key buffered batches per agent (§4.10).
type Client struct {
	conn    *grpc.ClientConn
	agentID string
	token   string
}

// NewConnector returns a pusher.Connector that dials addr lazily (grpc-go
// defers the actual connection until first use), applying the configured
// auth token, message size cap, and gzip compression (§4.5, §4.10, §6).
func NewConnector(addr, agentID, authToken string, maxMessageSizeMB int) pusher.Connector {
	return func(ctx context.Context) (pusher.Client, error) {
		maxSize := maxMessageSizeMB * bytesPerMB
		conn, err := grpc.NewClient(addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(
				grpc.CallContentSubtype(codecSubtype),
				grpc.MaxCallRecvMsgSize(maxSize),
				grpc.MaxCallSendMsgSize(maxSize),
				grpc.UseCompressor("gzip"),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("grpcclient: dial %q: %w", addr, err)
		}
		return &Client{conn: conn, agentID: agentID, token: authToken}, nil
	}
}

// Push streams one wire-encoded batch to the aggregator (§4.10 Push RPC),
// recovering the batch's sequence number from the wire message itself so
// the pusher's Client interface doesn't need to grow a sequence field.
func (c *Client) Push(ctx context.Context, payload []byte) (pusher.Response, error) {
	msg, err := wire.Decode(payload)
	if err != nil {
		return pusher.Response{}, fmt.Errorf("grpcclient: decode outgoing payload: %w", err)
	}

	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	req := &grpcapi.PushRequest{AgentID: c.agentID, Sequence: msg.Sequence, Payload: payload}
	resp := new(grpcapi.PushResponse)
	if err := c.conn.Invoke(ctx, "/aperture.aggregator.v1.Aggregator/Push", req, resp); err != nil {
		return pusher.Response{}, err
	}
	if resp.Error != "" {
		return pusher.Response{}, fmt.Errorf("grpcclient: push rejected: %s", resp.Error)
	}
	return pusher.Response{OK: resp.OK, Backpressure: resp.Backpressure}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
