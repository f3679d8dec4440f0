package export

import (
	"context"
	"time"

	"github.com/telemetrydock/duckport/pkg/timerange"
)

// Record is one analytics record as decoded from the remote API. Keys are
// property names; the sink decides how to map them onto columns.
type Record map[string]any

// Cursor is an opaque pagination position within one chunk. The zero value
// requests the first page.
type Cursor string

// Page is one batch of records returned by a single fetch call. An empty
// Next cursor signals exhaustion for the chunk.
type Page struct {
	Records []Record
	Next    Cursor
}

// PageFetcher fetches one page of records for a chunk interval. Transient
// faults are the fetcher's concern (it may retry internally); any error it
// returns is terminal for the chunk.
type PageFetcher interface {
	FetchPage(ctx context.Context, iv timerange.Interval, cursor Cursor) (*Page, error)
}

// BatchSink appends record batches to a local table. WriteBatch must
// tolerate concurrent calls from different chunks for the same table, or the
// caller must wrap it in a serializing sink.
type BatchSink interface {
	// EnsureTable prepares the target table. When appendMode is false and
	// the table already holds rows, it must return an error matching
	// ErrTableExists.
	EnsureTable(ctx context.Context, table string, appendMode bool) error

	// WriteBatch appends one page of records, atomically per call.
	WriteBatch(ctx context.Context, table string, records []Record) error
}

// CheckpointStore records chunk completion so interrupted exports can skip
// already-fetched ranges on a resumed run.
type CheckpointStore interface {
	Completed(ctx context.Context, table string, iv timerange.Interval) (rows int, ok bool, err error)
	MarkCompleted(ctx context.Context, table string, iv timerange.Interval, rows int) error
}

// Outcome is the terminal report for one chunk, created exactly once by the
// worker that processed it.
type Outcome struct {
	Chunk    timerange.Chunk
	Rows     int
	Duration time.Duration

	// Err is nil on success. For failed chunks it records the terminal
	// fetch or store error; for chunks never started or interrupted by
	// cancellation it matches ErrCancelled. Rows may be non-zero on a
	// failed chunk: pages stored before the failure are retained, not
	// rolled back.
	Err error

	// FromCheckpoint marks a chunk skipped because a previous run already
	// exported it.
	FromCheckpoint bool
}

// Failed reports whether the chunk terminated with an error, including
// cancellation.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Snapshot is an internally consistent view of export progress. Completed
// counts succeeded chunks only; Rows counts their rows.
type Snapshot struct {
	Total     int
	Completed int
	Failed    int
	Rows      int64
	Elapsed   time.Duration
}

// ProgressFunc observes progress snapshots. It is invoked under the
// aggregator's lock at least once per chunk completion and must not block
// materially.
type ProgressFunc func(Snapshot)
