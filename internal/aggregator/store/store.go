// Package store implements the aggregator's persistent batch store (spec
// §4.7): buffered, retry-safe writes into a DuckDB-backed table, and
// queries that flush pending rows first so just-written data is always
// visible to the caller.
package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aperture-systems/aperture/internal/constants"
	"github.com/aperture-systems/aperture/internal/duckdb"
)

// ttlDays is how long a batch row is retained before Vacuum removes it.
const ttlDays = 90

// nsToMsBoundary is the heuristic threshold (§4.7): values at or above this
// are treated as nanoseconds and divided down to milliseconds; anything
// smaller is assumed to already be milliseconds.
const nsToMsBoundary = 1_000_000_000_000_000

// batchRow is the on-disk shape of one stored batch.
type batchRow struct {
	AgentID        string `duckdb:"agent_id,pk"`
	Sequence       uint64 `duckdb:"sequence,pk"`
	ReceivedAtMs   int64  `duckdb:"received_at_ms"`
	EventCount     uint64 `duckdb:"event_count"`
	PayloadB64     string `duckdb:"payload_b64"`
	PartitionMonth string `duckdb:"partition_month,immutable"`
}

// Batch is the store's query-result shape, with the payload already
// base64-decoded back to wire bytes.
type Batch struct {
	AgentID      string
	Sequence     uint64
	ReceivedAtMs int64
	EventCount   uint64
	Payload      []byte
}

// pendingWrite is one not-yet-flushed write_batch call.
type pendingWrite struct {
	agentID      string
	sequence     uint64
	receivedAtNs int64
	eventCount   uint64
	payload      []byte
}

// Store is the reference persistent batch store: a month-partitioned
// DuckDB table with buffered writes (§4.7).
type Store struct {
	db     *sql.DB
	table  *duckdb.Table[batchRow]
	logger zerolog.Logger

	mu      sync.Mutex
	pending []pendingWrite

	flushThreshold int
	flushInterval  time.Duration
	wake           chan struct{}
	stop           chan struct{}
	done           chan struct{}

	metricsMu        sync.Mutex
	flushAttemptsOK  uint64
	flushAttemptsErr uint64
	rowsFlushed      uint64
	lastFlushTook    time.Duration
}

// Open creates the batches table if it doesn't exist and starts the
// background flusher.
func Open(dsn string, logger zerolog.Logger) (*Store, error) {
	db, err := duckdb.OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open duckdb: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS batches (
			agent_id       VARCHAR NOT NULL,
			sequence       UBIGINT NOT NULL,
			received_at_ms BIGINT NOT NULL,
			event_count    UBIGINT NOT NULL,
			payload_b64    VARCHAR NOT NULL,
			partition_month VARCHAR,
			PRIMARY KEY (agent_id, sequence)
		)
	`); err != nil {
		return nil, fmt.Errorf("store: create batches table: %w", err)
	}

	s := &Store{
		db:             db,
		table:          duckdb.NewTable[batchRow](db, "batches"),
		logger:         logger.With().Str("component", "store").Logger(),
		flushThreshold: constants.DefaultStoreFlushThreshold,
		flushInterval:  constants.DefaultStoreFlushInterval,
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	go s.flushLoop()
	return s, nil
}

// WriteBatch enqueues a batch for the background flusher (§4.7). The
// timestamp heuristic normalizes receivedAtNs (which some agent paths pass
// as milliseconds) to milliseconds before storage.
func (s *Store) WriteBatch(agentID string, sequence uint64, receivedAtNs int64, eventCount uint64, payload []byte) {
	s.mu.Lock()
	s.pending = append(s.pending, pendingWrite{
		agentID:      agentID,
		sequence:     sequence,
		receivedAtNs: receivedAtNs,
		eventCount:   eventCount,
		payload:      payload,
	})
	shouldWake := len(s.pending) >= s.flushThreshold
	s.mu.Unlock()

	if shouldWake {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// PendingCount reports the pending-row gauge.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func normalizeToMs(receivedAtNs int64) int64 {
	if receivedAtNs >= nsToMsBoundary {
		return receivedAtNs / 1_000_000
	}
	return receivedAtNs
}

func (s *Store) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.wake:
			s.flush()
		case <-s.stop:
			s.flush()
			return
		}
	}
}

// flush swaps out the pending vector and bulk-inserts it. On error, the
// rows are re-queued at the tail so data survives transient store outages
// (§4.7).
func (s *Store) flush() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	start := time.Now()
	rows := make([]*batchRow, len(batch))
	for i, w := range batch {
		ms := normalizeToMs(w.receivedAtNs)
		rows[i] = &batchRow{
			AgentID:        w.agentID,
			Sequence:       w.sequence,
			ReceivedAtMs:   ms,
			EventCount:     w.eventCount,
			PayloadB64:     base64.StdEncoding.EncodeToString(w.payload),
			PartitionMonth: time.UnixMilli(ms).UTC().Format("2006-01"),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.table.BatchUpsert(ctx, rows)
	took := time.Since(start)

	s.metricsMu.Lock()
	s.lastFlushTook = took
	if err != nil {
		s.flushAttemptsErr++
	} else {
		s.flushAttemptsOK++
		s.rowsFlushed += uint64(len(batch))
	}
	s.metricsMu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).Int("rows", len(batch)).Msg("store: flush failed, requeueing at tail")
		s.mu.Lock()
		s.pending = append(s.pending, batch...)
		s.mu.Unlock()
	}
}

// Shutdown cancels the background flusher after a final synchronous
// flush, warning (but not failing) if that flush errors (§7 "Shutdown
// timeout").
func (s *Store) Shutdown() {
	close(s.stop)
	<-s.done
}

// Query flushes pending rows synchronously, then returns stored batches
// ordered newest-first, optionally filtered by agent_id and time range.
func (s *Store) Query(ctx context.Context, agentID string, startMs, endMs int64, limit int) ([]Batch, error) {
	s.flush()
	return s.query(ctx, agentID, startMs, endMs, limit, true)
}

// FetchPayloads is like Query but orders ascending (chronological), the
// shape the aggregation engine expects (§4.7).
func (s *Store) FetchPayloads(ctx context.Context, agentID string, startMs, endMs int64, limit int) ([]Batch, error) {
	s.flush()
	return s.query(ctx, agentID, startMs, endMs, limit, false)
}

func (s *Store) query(ctx context.Context, agentID string, startMs, endMs int64, limit int, desc bool) ([]Batch, error) {
	if limit <= 0 || limit > 10000 {
		limit = 10000
	}

	b := duckdb.NewQueryBuilder("batches").
		Select("agent_id", "sequence", "received_at_ms", "event_count", "payload_b64").
		TimeColumn("received_at_ms").
		Eq("agent_id", agentID)

	if startMs > 0 || endMs > 0 {
		end := endMs
		if end == 0 {
			end = time.Now().UnixMilli()
		}
		b = b.Between("received_at_ms", startMs, end)
	}

	if desc {
		b = b.OrderBy("-received_at_ms")
	} else {
		b = b.OrderBy("received_at_ms")
	}
	b = b.Limit(limit)

	query, args, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("store: build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Batch
	for rows.Next() {
		var row batchRow
		if err := rows.Scan(&row.AgentID, &row.Sequence, &row.ReceivedAtMs, &row.EventCount, &row.PayloadB64); err != nil {
			return nil, fmt.Errorf("store: scan batch row: %w", err)
		}
		payload, err := base64.StdEncoding.DecodeString(row.PayloadB64)
		if err != nil {
			s.logger.Warn().Err(err).Str("agent_id", row.AgentID).Msg("store: skipping row with corrupt base64 payload")
			continue
		}
		out = append(out, Batch{
			AgentID:      row.AgentID,
			Sequence:     row.Sequence,
			ReceivedAtMs: row.ReceivedAtMs,
			EventCount:   row.EventCount,
			Payload:      payload,
		})
	}
	return out, rows.Err()
}

// Vacuum deletes rows older than the 90-day TTL.
func (s *Store) Vacuum(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -ttlDays).UnixMilli()
	result, err := s.db.ExecContext(ctx, "DELETE FROM batches WHERE received_at_ms < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: vacuum: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Metrics snapshots the store's flush metrics gauge/counters.
type Metrics struct {
	FlushAttemptsOK  uint64
	FlushAttemptsErr uint64
	RowsFlushed      uint64
	LastFlushTook    time.Duration
	Pending          int
}

func (s *Store) Metrics() Metrics {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	return Metrics{
		FlushAttemptsOK:  s.flushAttemptsOK,
		FlushAttemptsErr: s.flushAttemptsErr,
		RowsFlushed:      s.rowsFlushed,
		LastFlushTook:    s.lastFlushTook,
		Pending:          s.PendingCount(),
	}
}
