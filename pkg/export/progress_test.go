package export

import (
	"sync"
	"testing"

	"github.com/telemetrydock/duckport/pkg/timerange"
)

func TestAggregator_SnapshotsNeverTorn(t *testing.T) {
	const chunks = 64

	agg := newAggregator(chunks, func(s Snapshot) {
		// Invariant under concurrent reports: counters always describe a
		// whole number of terminal chunks, rows always match completions.
		if s.Completed+s.Failed == 0 || s.Completed+s.Failed > chunks {
			t.Errorf("torn snapshot: %+v", s)
		}
		if s.Rows != int64(s.Completed)*10 {
			t.Errorf("rows %d inconsistent with %d completions", s.Rows, s.Completed)
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < chunks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := Outcome{
				Chunk: timerange.Chunk{Index: i, Interval: timerange.MustInterval("2024-01-01", "2024-01-01")},
				Rows:  10,
			}
			if i%4 == 0 {
				out.Err = &ChunkError{Chunk: out.Chunk, Stage: StageFetch}
				out.Rows = 0
			}
			agg.report(out)
		}(i)
	}
	wg.Wait()

	final := agg.snapshot()
	if final.Completed+final.Failed != chunks {
		t.Errorf("final snapshot %+v does not account for all %d chunks", final, chunks)
	}
	if final.Failed != chunks/4 {
		t.Errorf("Failed = %d, want %d", final.Failed, chunks/4)
	}
	if final.Elapsed <= 0 {
		t.Error("Elapsed not tracked")
	}
}
