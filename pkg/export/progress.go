package export

import (
	"sync"
	"time"
)

// aggregator is the only state mutated by multiple workers. All updates go
// through report's mutex so observers never see a torn snapshot.
type aggregator struct {
	mu         sync.Mutex
	snap       Snapshot
	start      time.Time
	onProgress ProgressFunc
}

func newAggregator(total int, onProgress ProgressFunc) *aggregator {
	return &aggregator{
		snap:       Snapshot{Total: total},
		start:      time.Now(),
		onProgress: onProgress,
	}
}

// report folds one terminal outcome into the snapshot and, if configured,
// invokes the progress callback with the updated state. The callback runs
// under the lock: concurrent reports cannot interleave into it.
func (a *aggregator) report(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if o.Failed() {
		a.snap.Failed++
	} else {
		a.snap.Completed++
		a.snap.Rows += int64(o.Rows)
	}
	a.snap.Elapsed = time.Since(a.start)

	if a.onProgress != nil {
		a.onProgress(a.snap)
	}
}

// snapshot returns the current state. After every chunk has reported this is
// the frozen terminal snapshot the result is built from.
func (a *aggregator) snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := a.snap
	snap.Elapsed = time.Since(a.start)
	return snap
}
