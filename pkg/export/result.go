package export

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Result is the final accounting of one export run, built after every
// planned chunk reached a terminal outcome. TotalRows counts rows from
// succeeded chunks only; partial rows written by a failed chunk stay in the
// failed outcome's Rows field.
type Result struct {
	RunID           string
	Table           string
	TotalRows       int64
	ChunksTotal     int
	ChunksSucceeded int
	ChunksFailed    int
	ChunksCancelled int
	Failures        []Outcome
	Duration        time.Duration
}

// Failed reports whether any chunk did not succeed. Zero successful chunks
// is still a non-error Result; the caller decides whether that is fatal.
func (r *Result) Failed() bool {
	return len(r.Failures) > 0
}

// Summary renders a one-line human report, e.g.
// "4 of 5 chunks succeeded, 1 failed: [2024-01-15..2024-01-21]: first page: boom".
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d chunks succeeded, %d rows in %s",
		r.ChunksSucceeded, r.ChunksTotal, r.TotalRows, r.Duration.Round(time.Millisecond))

	if r.ChunksFailed > 0 {
		fmt.Fprintf(&b, ", %d failed:", r.ChunksFailed)
		for _, o := range r.Failures {
			if errors.Is(o.Err, ErrCancelled) {
				continue
			}
			fmt.Fprintf(&b, " [%s]: %v", o.Chunk.Interval, unwrapChunkErr(o.Err))
		}
	}
	if r.ChunksCancelled > 0 {
		fmt.Fprintf(&b, ", %d cancelled", r.ChunksCancelled)
	}
	return b.String()
}

// unwrapChunkErr strips the ChunkError envelope for display; the interval is
// already printed alongside.
func unwrapChunkErr(err error) error {
	var ce *ChunkError
	if errors.As(err, &ce) {
		return fmt.Errorf("%s: %v", ce.Stage, ce.Err)
	}
	return err
}
