package grpcapi

import (
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip" // registers the gzip compressor for both directions (§4.10, §6)

	"github.com/aperture-systems/aperture/internal/aggregator/audit"
	"github.com/aperture-systems/aperture/internal/aggregator/buffer"
	"github.com/aperture-systems/aperture/internal/aggregator/config"
	"github.com/aperture-systems/aperture/internal/aggregator/metrics"
	"github.com/aperture-systems/aperture/internal/aggregator/store"
)

const bytesPerMB = 1024 * 1024

// NewGRPCServer builds the aperture.aggregator.v1.Aggregator gRPC server:
// the custom "aperture-json" codec (registered in codec.go's init), the
// bearer-token auth interceptor, and an env-tunable max message size
// (§4.10, §6).
func NewGRPCServer(cfg config.Config, buf *buffer.Buffer, st *store.Store, reg *metrics.Registry, logger zerolog.Logger) *grpc.Server {
	auditLog := audit.New(logger)
	authInterceptor := NewAuthInterceptor(cfg.AuthToken, auditLog)

	maxSize := cfg.MaxMessageSizeMB * bytesPerMB

	srv := grpc.NewServer(
		grpc.UnaryInterceptor(authInterceptor.Unary()),
		grpc.MaxRecvMsgSize(maxSize),
		grpc.MaxSendMsgSize(maxSize),
	)

	RegisterAggregatorServer(srv, New(buf, st, reg, logger))
	return srv
}
