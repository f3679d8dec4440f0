package export

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/telemetrydock/duckport/pkg/timerange"
)

// runChunk processes one chunk to its terminal outcome: page by page, each
// page stored before the next is requested, so memory stays bounded to one
// page per worker regardless of chunk size. No retries here; retry policy
// belongs to the fetcher.
func runChunk(ctx context.Context, chunk timerange.Chunk, table string, fetcher PageFetcher, sink BatchSink, logger zerolog.Logger) Outcome {
	start := time.Now()

	var (
		rows   int
		cursor Cursor
		pages  int
	)

	for {
		if ctx.Err() != nil {
			return terminal(chunk, rows, start, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))
		}

		page, err := fetcher.FetchPage(ctx, chunk.Interval, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return terminal(chunk, rows, start, fmt.Errorf("%w: %v", ErrCancelled, err))
			}
			logger.Warn().
				Stringer("chunk", chunk).
				Int("rows_stored", rows).
				Err(err).
				Msg("Chunk fetch failed")
			return terminal(chunk, rows, start, &ChunkError{Chunk: chunk, Stage: StageFetch, Err: err})
		}

		if len(page.Records) > 0 {
			if err := sink.WriteBatch(ctx, table, page.Records); err != nil {
				if ctx.Err() != nil {
					return terminal(chunk, rows, start, fmt.Errorf("%w: %v", ErrCancelled, err))
				}
				logger.Warn().
					Stringer("chunk", chunk).
					Int("rows_stored", rows).
					Err(err).
					Msg("Chunk store failed")
				return terminal(chunk, rows, start, &ChunkError{Chunk: chunk, Stage: StageStore, Err: err})
			}
			rows += len(page.Records)
		}
		pages++

		if page.Next == "" {
			break
		}
		cursor = page.Next
	}

	logger.Debug().
		Stringer("chunk", chunk).
		Int("rows", rows).
		Int("pages", pages).
		Dur("duration", time.Since(start)).
		Msg("Chunk complete")

	return terminal(chunk, rows, start, nil)
}

func terminal(chunk timerange.Chunk, rows int, start time.Time, err error) Outcome {
	return Outcome{
		Chunk:    chunk,
		Rows:     rows,
		Duration: time.Since(start),
		Err:      err,
	}
}
