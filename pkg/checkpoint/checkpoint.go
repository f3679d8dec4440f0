// Package checkpoint records completed export chunks in Redis so an
// interrupted export can resume without refetching ranges that already
// landed in the local store.
//
// Keys are scoped per table and chunk interval; entries expire after a
// retention window so stale checkpoints cannot shadow a reset database
// forever. A broken checkpoint backend degrades to refetching, never to
// failing the export.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/telemetrydock/duckport/pkg/timerange"
)

// Prometheus metrics for checkpoint lookups.
var (
	checkpointHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duckport_checkpoint_hits_total",
		Help: "Chunks skipped because a checkpoint marked them complete",
	})

	checkpointMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duckport_checkpoint_misses_total",
		Help: "Checkpoint lookups that found no completed chunk",
	})

	checkpointErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duckport_checkpoint_errors_total",
		Help: "Checkpoint operation errors by operation",
	}, []string{"operation"})
)

// DefaultTTL is how long completed-chunk markers are retained.
const DefaultTTL = 7 * 24 * time.Hour

// entry is the stored checkpoint payload.
type entry struct {
	Rows        int       `json:"rows"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store is a Redis-backed chunk checkpoint store. It implements
// export.CheckpointStore.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a checkpoint store. A non-positive ttl falls back to
// DefaultTTL.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{redis: redisClient, ttl: ttl}
}

func key(table string, iv timerange.Interval) string {
	return fmt.Sprintf("duckport:checkpoint:%s:%s", table, iv)
}

// Completed reports whether a previous run already exported this chunk, and
// how many rows it stored.
func (s *Store) Completed(ctx context.Context, table string, iv timerange.Interval) (int, bool, error) {
	data, err := s.redis.Get(ctx, key(table, iv)).Bytes()
	if err != nil {
		if err == redis.Nil {
			checkpointMisses.Inc()
			return 0, false, nil
		}
		checkpointErrors.WithLabelValues("get").Inc()
		return 0, false, fmt.Errorf("redis get checkpoint: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		checkpointErrors.WithLabelValues("get").Inc()
		return 0, false, fmt.Errorf("parse checkpoint: %w", err)
	}

	checkpointHits.Inc()
	return e.Rows, true, nil
}

// MarkCompleted records a chunk as fully exported.
func (s *Store) MarkCompleted(ctx context.Context, table string, iv timerange.Interval, rows int) error {
	data, err := json.Marshal(entry{Rows: rows, CompletedAt: time.Now()})
	if err != nil {
		checkpointErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.redis.Set(ctx, key(table, iv), data, s.ttl).Err(); err != nil {
		checkpointErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set checkpoint: %w", err)
	}
	return nil
}

// Clear removes every checkpoint for a table. Used when a table is rebuilt
// from scratch and old completion markers must not suppress refetching.
func (s *Store) Clear(ctx context.Context, table string) error {
	pattern := fmt.Sprintf("duckport:checkpoint:%s:*", table)

	iter := s.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			checkpointErrors.WithLabelValues("clear").Inc()
			return fmt.Errorf("redis del checkpoint %q: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		checkpointErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("redis scan checkpoints: %w", err)
	}
	return nil
}
