// Package metrics documents the Prometheus metrics published by duckport.
// All metrics are defined in their respective packages (admission, export,
// client, ratebudget, checkpoint, store) via promauto to keep concerns
// modular and avoid circular dependencies; this package is the reference.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by duckport. All metrics
// are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Admission Metrics (pkg/admission):
//   - duckport_admission_in_flight (Gauge): Tokens currently held
//   - duckport_admission_waits_total (Counter): Acquires that had to wait
//
// Export Metrics (pkg/export):
//   - duckport_export_chunks_total{status} (Counter): Chunks by terminal status
//     (succeeded, failed, cancelled)
//   - duckport_export_rows_total (Counter): Rows stored by succeeded chunks
//   - duckport_export_chunk_duration_seconds (Histogram): Per-chunk duration
//
// API Client Metrics (pkg/client):
//   - duckport_api_requests_total{endpoint, status} (Counter): Requests by endpoint/status
//   - duckport_api_request_duration_seconds{endpoint} (Histogram): Request duration
//   - duckport_api_errors_total{class} (Counter): Errors by class
//   - duckport_api_retries_total{error_class} (Counter): Retry attempts
//   - duckport_api_retry_backoff_seconds{error_class} (Histogram): Backoff durations
//   - duckport_api_retry_exhausted_total{error_class} (Counter): Exhausted retries
//
// Rate Budget Metrics (pkg/ratebudget):
//   - duckport_rate_budget_remaining (Gauge): Requests left in the remote window
//   - duckport_rate_budget_blocks_total (Counter): Requests blocked as critical
//   - duckport_rate_budget_throttles_total (Counter): Requests throttled as low
//
// Checkpoint Metrics (pkg/checkpoint):
//   - duckport_checkpoint_hits_total (Counter): Chunks skipped via checkpoint
//   - duckport_checkpoint_misses_total (Counter): Lookups without a checkpoint
//   - duckport_checkpoint_errors_total{operation} (Counter): Operation errors
//
// Store Metrics (pkg/store):
//   - duckport_store_batches_total (Counter): Batches written to DuckDB
//   - duckport_store_rows_total (Counter): Rows written to DuckDB
//   - duckport_store_batch_duration_seconds (Histogram): Batch insert duration
//
// Example Prometheus Queries:
//
//   # Export throughput
//   rate(duckport_export_rows_total[5m])
//
//   # Chunk failure ratio
//   sum(rate(duckport_export_chunks_total{status="failed"}[15m])) /
//   sum(rate(duckport_export_chunks_total[15m]))
//
//   # Budget pressure
//   duckport_rate_budget_remaining < 10
//
//   # P95 chunk latency
//   histogram_quantile(0.95, rate(duckport_export_chunk_duration_seconds_bucket[15m]))
