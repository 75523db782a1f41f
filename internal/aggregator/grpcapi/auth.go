package grpcapi

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/aperture-systems/aperture/internal/aggregator/audit"
)

// AuthInterceptor enforces the static bearer-token policy (§4.10): when
// token is empty, auth is disabled and every call succeeds.
type AuthInterceptor struct {
	token string
	audit audit.Logger
}

// NewAuthInterceptor builds an AuthInterceptor. An empty token disables
// auth entirely.
func NewAuthInterceptor(token string, auditLog audit.Logger) *AuthInterceptor {
	return &AuthInterceptor{token: token, audit: auditLog}
}

// Unary returns a grpc.UnaryServerInterceptor enforcing the token.
func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if a.token == "" {
			a.audit.GRPCAuthSuccess()
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			a.audit.GRPCAuthFailure("missing metadata")
			return nil, status.Error(codes.Unauthenticated, "missing authorization metadata")
		}
		values := md.Get("authorization")
		if len(values) == 0 {
			a.audit.GRPCAuthFailure("missing authorization header")
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}
		const prefix = "Bearer "
		header := values[0]
		if !strings.HasPrefix(header, prefix) || header[len(prefix):] != a.token {
			a.audit.GRPCAuthFailure("token mismatch")
			return nil, status.Error(codes.Unauthenticated, "invalid bearer token")
		}

		a.audit.GRPCAuthSuccess()
		return handler(ctx, req)
	}
}
