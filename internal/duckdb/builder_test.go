package duckdb

import "testing"

func TestBuilder_BatchQuery(t *testing.T) {
	q, args, err := NewQueryBuilder("batches").
		Select("agent_id", "sequence", "event_count", "received_at_ms", "payload_b64").
		Eq("agent_id", "agent-1").
		Gte("received_at_ms", int64(1000)).
		Lte("received_at_ms", int64(2000)).
		OrderBy("-received_at_ms").
		Limit(100).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := "SELECT agent_id, sequence, event_count, received_at_ms, payload_b64 FROM batches" +
		" WHERE agent_id = ? AND received_at_ms >= ? AND received_at_ms <= ?" +
		" ORDER BY received_at_ms DESC LIMIT ?"
	if q != want {
		t.Errorf("query = %q, want %q", q, want)
	}
	if len(args) != 4 {
		t.Errorf("args = %v, want 4 entries", args)
	}
}

func TestBuilder_EqSkipsEmptyString(t *testing.T) {
	q, args, err := NewQueryBuilder("batches").Eq("agent_id", "").Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if q != "SELECT * FROM batches" {
		t.Errorf("query = %q, want no WHERE clause", q)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}
}

func TestBuilder_RequiresTable(t *testing.T) {
	if _, _, err := (&Builder{}).Build(); err == nil {
		t.Error("Build() with no table should error")
	}
}
