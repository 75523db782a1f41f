// Package httpapi implements the aggregator's admin HTTP surface (spec
// §4.11): health/readiness/metrics endpoints plus a JSON REST API for the
// web UI, all served from one net/http.ServeMux.
package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/aperture-systems/aperture/internal/aggregator/alerts"
	"github.com/aperture-systems/aperture/internal/aggregator/audit"
	"github.com/aperture-systems/aperture/internal/aggregator/buffer"
	"github.com/aperture-systems/aperture/internal/aggregator/metrics"
	"github.com/aperture-systems/aperture/internal/aggregator/store"
)

// storeFetchTimeout bounds the store-first lookup before falling back to
// the in-memory buffer (§4.11).
const storeFetchTimeout = 5 * time.Second

// Server holds the dependencies every admin HTTP handler needs.
type Server struct {
	buffer  *buffer.Buffer
	store   *store.Store
	metrics *metrics.Registry
	alerts  *alerts.Store
	audit   audit.Logger
	logger  zerolog.Logger
}

// New builds a Server and its routed http.Handler. The handler is wrapped
// in an h2c handler so the admin API can be served over plaintext HTTP/2,
// the same way the teacher's own admin endpoint does.
func New(buf *buffer.Buffer, st *store.Store, reg *metrics.Registry, alertStore *alerts.Store, logger zerolog.Logger) (*Server, http.Handler) {
	s := &Server{
		buffer:  buf,
		store:   st,
		metrics: reg,
		alerts:  alertStore,
		audit:   audit.New(logger),
		logger:  logger.With().Str("component", "httpapi").Logger(),
	}
	return s, h2c.NewHandler(s.routes(), &http2.Server{})
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.auditedPlain(s.handleHealthz))
	mux.HandleFunc("/readyz", s.auditedPlain(s.handleReadyz))
	mux.HandleFunc("/metrics", s.auditedPlain(s.handleMetrics))

	mux.HandleFunc("/api/health", s.withCORS(s.handleAPIHealth))
	mux.HandleFunc("/api/batches", s.withCORS(s.handleAPIBatches))
	mux.HandleFunc("/api/aggregate", s.withCORS(s.handleAPIAggregate))
	mux.HandleFunc("/api/diff", s.withCORS(s.handleAPIDiff))
	mux.HandleFunc("/api/export/json", s.withCORS(s.handleExportJSON))
	mux.HandleFunc("/api/export/collapsed", s.withCORS(s.handleExportCollapsed))
	mux.HandleFunc("/api/export/pprof", s.withCORS(s.handleExportPprof))
	mux.HandleFunc("/api/alerts", s.withCORS(s.handleAlerts))
	mux.HandleFunc("/api/alerts/history", s.withCORS(s.handleAlertHistory))
	mux.HandleFunc("/api/alerts/evaluate", s.withCORS(s.handleAlertEvaluate))

	return mux
}

// auditedPlain wraps the three ungated admin endpoints with an audit
// record (§4.11, §4.12's audit channel).
func (s *Server) auditedPlain(next func(w http.ResponseWriter, r *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := next(w, r)
		s.audit.AdminHTTPRequest(r.URL.Path, status)
	}
}

// withCORS adds the `/api/*` CORS headers and answers preflight OPTIONS
// requests directly (§4.11).
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) int {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
	return http.StatusOK
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) int {
	// The buffer is an in-process data structure; it is always reachable
	// once constructed. Readiness failure would mean the server hasn't
	// finished wiring it up yet, which never happens post-New.
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
	return http.StatusOK
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) int {
	s.metrics.SetBufferSize(s.buffer.Len())
	s.metrics.SetBufferDrops(s.buffer.Drops())
	if s.store != nil {
		m := s.store.Metrics()
		s.metrics.SetPendingRows(m.Pending)
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.metrics.Encode()))
	return http.StatusOK
}
