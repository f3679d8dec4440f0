// Package export implements the parallel export engine: it splits a date
// interval into bounded chunks, fetches chunks concurrently under an
// admission cap, streams each page into a batch sink, and merges per-chunk
// outcomes into one result.
//
// Example usage:
//
//	runner := export.NewRunner(fetcher, sink)
//	result, err := runner.Run(ctx, iv, export.Options{
//		Table:         "events",
//		ChunkDays:     7,
//		MaxConcurrent: 2,
//	})
//
// The engine is best-effort, not fail-fast: a failing chunk never cancels
// its siblings. Run returns an error only when no chunk work has started
// (invalid arguments, or the target table pre-exists without append); every
// per-chunk failure is captured in the result instead, with the failed
// chunk's interval preserved so the caller can retry exactly that range.
//
// The remote client and the storage engine are collaborators behind the
// PageFetcher and BatchSink interfaces; retry policy lives in the fetcher,
// not here. MaxConcurrent=1 reproduces strictly sequential behavior.
package export
