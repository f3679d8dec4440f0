package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/telemetrydock/duckport/pkg/timerange"
)

// fakeFetcher serves a scripted number of pages per chunk and can be told to
// fail deterministically for specific intervals.
type fakeFetcher struct {
	mu          sync.Mutex
	pages       int // pages per chunk
	rowsPerPage int
	failOn      map[string]int // interval string -> page index (0-based) to fail on
	delay       time.Duration

	calls     int
	inFlight  int
	peak      int
	intervals map[string]bool
}

func newFakeFetcher(pages, rowsPerPage int) *fakeFetcher {
	return &fakeFetcher{
		pages:       pages,
		rowsPerPage: rowsPerPage,
		failOn:      make(map[string]int),
		intervals:   make(map[string]bool),
	}
}

func (f *fakeFetcher) failChunk(iv timerange.Interval, page int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[iv.String()] = page
}

func (f *fakeFetcher) FetchPage(ctx context.Context, iv timerange.Interval, cursor Cursor) (*Page, error) {
	f.mu.Lock()
	f.calls++
	f.intervals[iv.String()] = true
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	failPage, shouldFail := f.failOn[iv.String()]
	delay := f.delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	page := 0
	if cursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(string(cursor), "page-"))
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q: %w", cursor, err)
		}
		page = n
	}

	if shouldFail && page == failPage {
		return nil, errors.New("remote export error")
	}

	records := make([]Record, f.rowsPerPage)
	for i := range records {
		records[i] = Record{
			"event":       "page_view",
			"distinct_id": fmt.Sprintf("u-%d", i),
			"time":        iv.From.Unix(),
		}
	}

	out := &Page{Records: records}
	if page < f.pages-1 {
		out.Next = Cursor(fmt.Sprintf("page-%d", page+1))
	}
	return out, nil
}

// fakeSink counts appended rows and can simulate a pre-existing table or
// failing writes.
type fakeSink struct {
	mu          sync.Mutex
	rows        int
	batches     int
	tableExists bool
	failWrites  bool
	ensured     []string
}

func (s *fakeSink) EnsureTable(ctx context.Context, table string, appendMode bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = append(s.ensured, table)
	if s.tableExists && !appendMode {
		return fmt.Errorf("table %q: %w", table, ErrTableExists)
	}
	return nil
}

func (s *fakeSink) WriteBatch(ctx context.Context, table string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errors.New("disk full")
	}
	s.rows += len(records)
	s.batches++
	return nil
}

func (s *fakeSink) totalRows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// memCheckpoints is an in-memory CheckpointStore for coordinator tests.
type memCheckpoints struct {
	mu   sync.Mutex
	done map[string]int
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{done: make(map[string]int)}
}

func (c *memCheckpoints) key(table string, iv timerange.Interval) string {
	return table + "/" + iv.String()
}

func (c *memCheckpoints) Completed(ctx context.Context, table string, iv timerange.Interval) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.done[c.key(table, iv)]
	return rows, ok, nil
}

func (c *memCheckpoints) MarkCompleted(ctx context.Context, table string, iv timerange.Interval, rows int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done[c.key(table, iv)] = rows
	return nil
}
