// Package audit emits security and operational events on a dedicated
// logger component, so audit pipelines can filter on
// component="aperture::audit" independent of normal application logs.
package audit

import "github.com/rs/zerolog"

const target = "aperture::audit"

// Logger wraps a zerolog.Logger scoped to the audit component.
type Logger struct {
	log zerolog.Logger
}

// New returns an audit Logger derived from base, tagged with the audit
// component.
func New(base zerolog.Logger) Logger {
	return Logger{log: base.With().Str("component", target).Logger()}
}

// GRPCAuthSuccess records a valid Bearer token (or auth disabled).
func (a Logger) GRPCAuthSuccess() {
	a.log.Info().Str("event", "grpc_auth_success").Str("result", "ok").Send()
}

// GRPCAuthFailure records a missing or mismatched Bearer token.
func (a Logger) GRPCAuthFailure(reason string) {
	a.log.Warn().Str("event", "grpc_auth_failure").Str("result", "denied").Str("reason", reason).Send()
}

// AdminHTTPRequest records a request to a sensitive admin endpoint.
func (a Logger) AdminHTTPRequest(path string, status int) {
	a.log.Info().Str("event", "admin_http_request").Str("path", path).Int("status", status).Send()
}
