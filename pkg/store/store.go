// Package store persists exported records into a local DuckDB database and
// serves ad-hoc queries over them. It implements the export engine's
// BatchSink: batches are appended transactionally, one transaction per page,
// and concurrent appends from different chunks are safe (database/sql pools
// and serializes connections).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/telemetrydock/duckport/pkg/export"
)

// Prometheus metrics for the DuckDB sink.
var (
	storeBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duckport_store_batches_total",
		Help: "Total record batches written to DuckDB",
	})

	storeRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duckport_store_rows_total",
		Help: "Total rows written to DuckDB",
	})

	storeBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duckport_store_batch_duration_seconds",
		Help:    "Batch insert duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Schema selects the column layout for a target table.
type Schema string

const (
	// SchemaEvents lays out event records: name, distinct id, timestamp,
	// and the remaining properties as JSON.
	SchemaEvents Schema = "events"

	// SchemaProfiles lays out profile records: distinct id and the
	// property bag as JSON.
	SchemaProfiles Schema = "profiles"
)

// identRe restricts table names to plain identifiers; table names are
// interpolated into DDL and cannot be bound as parameters.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is a DuckDB-backed batch sink and query surface.
type Store struct {
	db     *sql.DB
	schema Schema
	logger zerolog.Logger
}

// Open opens (or creates) the DuckDB database at path. An empty path opens
// an in-memory database, which is useful for tests.
func Open(path string, schema Schema) (*Store, error) {
	switch schema {
	case SchemaEvents, SchemaProfiles:
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb %q: %w", path, err)
	}

	return &Store{
		db:     db,
		schema: schema,
		logger: log.With().Str("component", "store").Str("db", path).Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureTable creates the target table if needed. When appendMode is false
// and the table already holds rows, it returns export.ErrTableExists so the
// coordinator can fail before dispatching any chunk.
func (s *Store) EnsureTable(ctx context.Context, table string, appendMode bool) error {
	if !identRe.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	if _, err := s.db.ExecContext(ctx, s.createTableSQL(table)); err != nil {
		return fmt.Errorf("create table %q: %w", table, err)
	}

	if appendMode {
		return nil
	}

	var rows int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&rows); err != nil {
		return fmt.Errorf("count rows in %q: %w", table, err)
	}
	if rows > 0 {
		return fmt.Errorf("table %q holds %d rows: %w", table, rows, export.ErrTableExists)
	}
	return nil
}

// WriteBatch appends one page of records inside a single transaction.
func (s *Store) WriteBatch(ctx context.Context, table string, records []export.Record) error {
	if len(records) == 0 {
		return nil
	}
	if !identRe.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.insertSQL(table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		args, err := s.insertArgs(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %q: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	storeBatchesTotal.Inc()
	storeRowsTotal.Add(float64(len(records)))
	storeBatchDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug().
		Str("table", table).
		Int("rows", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Batch written")

	return nil
}

func (s *Store) createTableSQL(table string) string {
	switch s.schema {
	case SchemaProfiles:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				distinct_id VARCHAR NOT NULL,
				properties  JSON,
				inserted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`, table)
	default:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				event       VARCHAR NOT NULL,
				distinct_id VARCHAR,
				event_time  TIMESTAMP,
				properties  JSON,
				inserted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`, table)
	}
}

func (s *Store) insertSQL(table string) string {
	switch s.schema {
	case SchemaProfiles:
		return fmt.Sprintf(`INSERT INTO %s (distinct_id, properties) VALUES (?, ?)`, table)
	default:
		return fmt.Sprintf(`INSERT INTO %s (event, distinct_id, event_time, properties) VALUES (?, ?, ?, ?)`, table)
	}
}

func (s *Store) insertArgs(rec export.Record) ([]any, error) {
	switch s.schema {
	case SchemaProfiles:
		props, err := propertiesJSON(rec, "$distinct_id")
		if err != nil {
			return nil, err
		}
		return []any{stringField(rec, "$distinct_id"), props}, nil
	default:
		props, err := propertiesJSON(rec, "event", "distinct_id", "time")
		if err != nil {
			return nil, err
		}
		return []any{
			stringField(rec, "event"),
			stringField(rec, "distinct_id"),
			timeField(rec, "time"),
			props,
		}, nil
	}
}

// stringField extracts a string property, tolerating absent or non-string
// values as empty.
func stringField(rec export.Record, key string) string {
	if v, ok := rec[key].(string); ok {
		return v
	}
	return ""
}

// timeField extracts a unix-seconds timestamp. Export payloads carry event
// times as integers; JSON decoding yields float64.
func timeField(rec export.Record, key string) time.Time {
	switch v := rec[key].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC()
	case int64:
		return time.Unix(v, 0).UTC()
	case int:
		return time.Unix(int64(v), 0).UTC()
	default:
		return time.Time{}
	}
}

// propertiesJSON marshals the record minus the extracted columns.
func propertiesJSON(rec export.Record, extracted ...string) (string, error) {
	props := make(map[string]any, len(rec))
	for k, v := range rec {
		props[k] = v
	}
	for _, k := range extracted {
		delete(props, k)
	}

	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("marshal properties: %w", err)
	}
	return string(data), nil
}
