package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/telemetrydock/duckport/pkg/admission"
	"github.com/telemetrydock/duckport/pkg/timerange"
)

// Prometheus metrics for export runs.
var (
	exportChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duckport_export_chunks_total",
		Help: "Total chunks processed by terminal status",
	}, []string{"status"})

	exportRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duckport_export_rows_total",
		Help: "Total rows fetched and stored by succeeded chunks",
	})

	exportChunkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duckport_export_chunk_duration_seconds",
		Help:    "Per-chunk fetch-and-store duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})
)

// Options configures one export run.
type Options struct {
	// Table is the target table name (required).
	Table string

	// ChunkDays caps the width of one chunk in days.
	ChunkDays int

	// MaxConcurrent caps how many chunks fetch and store at once. 1 gives
	// strictly sequential behavior.
	MaxConcurrent int

	// Append allows writing into a table that already holds rows. When
	// false a pre-existing table fails the run before any chunk starts.
	Append bool

	// OnProgress, if set, observes the aggregator snapshot on every chunk
	// completion.
	OnProgress ProgressFunc

	// Checkpoints, if set, is consulted per chunk: already-completed
	// chunks are skipped and successful chunks are recorded.
	Checkpoints CheckpointStore
}

// DefaultOptions returns conservative defaults for the export API's rate
// budget: weekly chunks, two in flight.
func DefaultOptions(table string) Options {
	return Options{
		Table:         table,
		ChunkDays:     7,
		MaxConcurrent: 2,
	}
}

// Runner coordinates parallel exports over one fetcher/sink pair.
type Runner struct {
	fetcher PageFetcher
	sink    BatchSink
	logger  zerolog.Logger
}

// NewRunner creates a runner for the given collaborators.
func NewRunner(fetcher PageFetcher, sink BatchSink) *Runner {
	return &Runner{
		fetcher: fetcher,
		sink:    sink,
		logger:  log.With().Str("component", "export").Logger(),
	}
}

// Run exports the interval chunk by chunk and returns once every planned
// chunk reached a terminal outcome or cancellation drained the in-flight
// workers. The returned error is non-nil only for invalid arguments or the
// table pre-flight conflict; all per-chunk errors are captured in the
// Result.
func (r *Runner) Run(ctx context.Context, iv timerange.Interval, opts Options) (*Result, error) {
	if opts.Table == "" {
		return nil, ErrMissingTable
	}

	chunks, err := timerange.Split(iv, opts.ChunkDays)
	if err != nil {
		return nil, err
	}

	limiter, err := admission.New(opts.MaxConcurrent)
	if err != nil {
		return nil, err
	}

	// Pre-flight: the one check that fails fast, since no chunk work has
	// happened yet.
	if err := r.sink.EnsureTable(ctx, opts.Table, opts.Append); err != nil {
		return nil, fmt.Errorf("ensure table %q: %w", opts.Table, err)
	}

	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Str("table", opts.Table).Logger()

	logger.Info().
		Stringer("interval", iv).
		Int("chunks", len(chunks)).
		Int("chunk_days", opts.ChunkDays).
		Int("max_concurrent", opts.MaxConcurrent).
		Msg("Starting export")

	start := time.Now()
	agg := newAggregator(len(chunks), opts.OnProgress)
	outcomes := make([]Outcome, len(chunks))

	var wg sync.WaitGroup
	for _, chunk := range chunks {
		// After cancellation no new chunk is dispatched; the chunk still
		// gets a terminal outcome so the accounting stays complete.
		if ctx.Err() != nil {
			outcomes[chunk.Index] = r.record(agg, cancelledOutcome(chunk, ctx.Err()))
			continue
		}

		if out, ok := r.fromCheckpoint(ctx, chunk, opts, logger); ok {
			outcomes[chunk.Index] = r.record(agg, out)
			continue
		}

		wg.Add(1)
		go func(chunk timerange.Chunk) {
			defer wg.Done()

			token, err := limiter.Acquire(ctx)
			if err != nil {
				outcomes[chunk.Index] = r.record(agg, cancelledOutcome(chunk, err))
				return
			}
			defer token.Release()

			out := runChunk(ctx, chunk, opts.Table, r.fetcher, r.sink, logger)
			if !out.Failed() && opts.Checkpoints != nil {
				if err := opts.Checkpoints.MarkCompleted(ctx, opts.Table, chunk.Interval, out.Rows); err != nil {
					logger.Warn().Stringer("chunk", chunk).Err(err).Msg("Checkpoint write failed")
				}
			}
			outcomes[chunk.Index] = r.record(agg, out)
		}(chunk)
	}
	wg.Wait()

	result := buildResult(runID, opts.Table, agg.snapshot(), outcomes, time.Since(start))

	logger.Info().
		Int("succeeded", result.ChunksSucceeded).
		Int("failed", result.ChunksFailed).
		Int("cancelled", result.ChunksCancelled).
		Int64("rows", result.TotalRows).
		Dur("duration", result.Duration).
		Msg("Export finished")

	return result, nil
}

// record reports the outcome to the aggregator and metrics, then hands it
// back for the outcome table. Each slot is written by exactly one goroutine.
func (r *Runner) record(agg *aggregator, out Outcome) Outcome {
	agg.report(out)

	switch {
	case errors.Is(out.Err, ErrCancelled):
		exportChunksTotal.WithLabelValues("cancelled").Inc()
	case out.Err != nil:
		exportChunksTotal.WithLabelValues("failed").Inc()
	default:
		exportChunksTotal.WithLabelValues("succeeded").Inc()
		exportRowsTotal.Add(float64(out.Rows))
	}
	exportChunkDuration.Observe(out.Duration.Seconds())

	return out
}

// fromCheckpoint reports whether a previous run already completed this
// chunk. Checkpoint store failures only log: a broken checkpoint backend
// must not fail the export.
func (r *Runner) fromCheckpoint(ctx context.Context, chunk timerange.Chunk, opts Options, logger zerolog.Logger) (Outcome, bool) {
	if opts.Checkpoints == nil {
		return Outcome{}, false
	}

	rows, ok, err := opts.Checkpoints.Completed(ctx, opts.Table, chunk.Interval)
	if err != nil {
		logger.Warn().Stringer("chunk", chunk).Err(err).Msg("Checkpoint lookup failed")
		return Outcome{}, false
	}
	if !ok {
		return Outcome{}, false
	}

	logger.Info().Stringer("chunk", chunk).Int("rows", rows).Msg("Chunk already exported, skipping")
	return Outcome{Chunk: chunk, Rows: rows, FromCheckpoint: true}, true
}

func cancelledOutcome(chunk timerange.Chunk, cause error) Outcome {
	return Outcome{
		Chunk: chunk,
		Err:   fmt.Errorf("%w: %v", ErrCancelled, cause),
	}
}

func buildResult(runID, table string, snap Snapshot, outcomes []Outcome, elapsed time.Duration) *Result {
	result := &Result{
		RunID:       runID,
		Table:       table,
		TotalRows:   snap.Rows,
		ChunksTotal: snap.Total,
		Duration:    elapsed,
	}

	for _, out := range outcomes {
		switch {
		case errors.Is(out.Err, ErrCancelled):
			result.ChunksCancelled++
			result.Failures = append(result.Failures, out)
		case out.Err != nil:
			result.ChunksFailed++
			result.Failures = append(result.Failures, out)
		default:
			result.ChunksSucceeded++
		}
	}
	return result
}
