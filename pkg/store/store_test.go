package store

import (
	"context"
	"errors"
	"testing"

	"github.com/telemetrydock/duckport/pkg/export"
)

// openTestStore opens an in-memory DuckDB database.
func openTestStore(t *testing.T, schema Schema) *Store {
	t.Helper()

	s, err := Open("", schema)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func eventRecord(event, distinctID string, ts int64) export.Record {
	return export.Record{
		"event":       event,
		"distinct_id": distinctID,
		"time":        float64(ts),
		"browser":     "firefox",
	}
}

func TestOpen_UnknownSchema(t *testing.T) {
	if _, err := Open("", Schema("bogus")); err == nil {
		t.Fatal("Open() with unknown schema should error")
	}
}

func TestStore_WriteAndCount(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, SchemaEvents)

	if err := s.EnsureTable(ctx, "events", false); err != nil {
		t.Fatalf("EnsureTable() error: %v", err)
	}

	batch := []export.Record{
		eventRecord("signup", "u-1", 1704067200),
		eventRecord("page_view", "u-2", 1704070800),
	}
	if err := s.WriteBatch(ctx, "events", batch); err != nil {
		t.Fatalf("WriteBatch() error: %v", err)
	}
	if err := s.WriteBatch(ctx, "events", batch[:1]); err != nil {
		t.Fatalf("WriteBatch() error: %v", err)
	}

	n, err := s.CountRows(ctx, "events")
	if err != nil {
		t.Fatalf("CountRows() error: %v", err)
	}
	if n != 3 {
		t.Errorf("CountRows() = %d, want 3", n)
	}
}

func TestStore_EnsureTableConflict(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, SchemaEvents)

	if err := s.EnsureTable(ctx, "events", false); err != nil {
		t.Fatalf("EnsureTable() on fresh table error: %v", err)
	}
	if err := s.WriteBatch(ctx, "events", []export.Record{eventRecord("x", "u", 1)}); err != nil {
		t.Fatalf("WriteBatch() error: %v", err)
	}

	// Populated table without append: the pre-flight conflict.
	if err := s.EnsureTable(ctx, "events", false); !errors.Is(err, export.ErrTableExists) {
		t.Errorf("EnsureTable() error = %v, want ErrTableExists", err)
	}

	// Append mode accepts the populated table.
	if err := s.EnsureTable(ctx, "events", true); err != nil {
		t.Errorf("EnsureTable() with append error: %v", err)
	}
}

func TestStore_EmptyTableIsNoConflict(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, SchemaEvents)

	if err := s.EnsureTable(ctx, "events", false); err != nil {
		t.Fatalf("EnsureTable() error: %v", err)
	}
	// Re-running against a still-empty table is fine.
	if err := s.EnsureTable(ctx, "events", false); err != nil {
		t.Errorf("EnsureTable() on empty table error: %v", err)
	}
}

func TestStore_RejectsBadTableName(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, SchemaEvents)

	for _, table := range []string{"", "ev ents", "events;drop", "1table"} {
		if err := s.EnsureTable(ctx, table, false); err == nil {
			t.Errorf("EnsureTable(%q) should reject invalid identifier", table)
		}
		if err := s.WriteBatch(ctx, table, []export.Record{{"event": "x"}}); err == nil {
			t.Errorf("WriteBatch(%q) should reject invalid identifier", table)
		}
	}
}

func TestStore_Query(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, SchemaEvents)

	if err := s.EnsureTable(ctx, "events", false); err != nil {
		t.Fatalf("EnsureTable() error: %v", err)
	}
	batch := []export.Record{
		eventRecord("signup", "u-1", 1704067200),
		eventRecord("signup", "u-2", 1704067260),
		eventRecord("page_view", "u-1", 1704067320),
	}
	if err := s.WriteBatch(ctx, "events", batch); err != nil {
		t.Fatalf("WriteBatch() error: %v", err)
	}

	result, err := s.Query(ctx, `SELECT event, COUNT(*) AS n FROM events GROUP BY event ORDER BY n DESC`)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}

	if len(result.Columns) != 2 || result.Columns[0] != "event" {
		t.Errorf("Columns = %v, want [event n]", result.Columns)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("Query() returned %d rows, want 2", len(result.Rows))
	}
	if result.Rows[0][0] != "signup" {
		t.Errorf("top event = %v, want signup", result.Rows[0][0])
	}
}

func TestStore_ProfilesSchema(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, SchemaProfiles)

	if err := s.EnsureTable(ctx, "profiles", false); err != nil {
		t.Fatalf("EnsureTable() error: %v", err)
	}

	batch := []export.Record{
		{"$distinct_id": "u-1", "$properties": map[string]any{"plan": "pro"}},
		{"$distinct_id": "u-2", "$properties": map[string]any{"plan": "free"}},
	}
	if err := s.WriteBatch(ctx, "profiles", batch); err != nil {
		t.Fatalf("WriteBatch() error: %v", err)
	}

	result, err := s.Query(ctx, `SELECT distinct_id FROM profiles ORDER BY distinct_id`)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(result.Rows) != 2 || result.Rows[0][0] != "u-1" {
		t.Errorf("profiles rows = %v, want u-1 and u-2", result.Rows)
	}
}
