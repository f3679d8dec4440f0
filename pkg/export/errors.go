package export

import (
	"errors"
	"fmt"

	"github.com/telemetrydock/duckport/pkg/timerange"
)

// Errors surfaced by the export engine.
var (
	// ErrTableExists is returned from Run when the target table already
	// holds rows and append mode was not requested. Checked once, before
	// any chunk is dispatched. Sinks wrap this sentinel.
	ErrTableExists = errors.New("target table already exists")

	// ErrCancelled marks chunk outcomes for chunks never started or
	// interrupted by cancellation.
	ErrCancelled = errors.New("export cancelled")

	// ErrMissingTable is returned when Options.Table is empty.
	ErrMissingTable = errors.New("target table name is required")
)

// Stage identifies which collaborator failed for a chunk.
type Stage string

const (
	// StageFetch marks a terminal PageFetcher error.
	StageFetch Stage = "fetch"

	// StageStore marks a BatchSink error.
	StageStore Stage = "store"
)

// ChunkError is the terminal error of one failed chunk, carrying the chunk
// so callers can retry exactly that sub-range.
type ChunkError struct {
	Chunk timerange.Chunk
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Chunk.Interval, e.Stage, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ChunkError) Unwrap() error {
	return e.Err
}
