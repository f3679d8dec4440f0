package timerange

import (
	"fmt"
	"time"
)

// Chunk is one bounded sub-interval of an export range, the unit of
// concurrent work. Index is the chunk's position in the planned sequence and
// is used only for deterministic reporting, not execution order.
type Chunk struct {
	Index    int
	Interval Interval
}

// String renders the chunk as "chunk[i] from..to".
func (c Chunk) String() string {
	return fmt.Sprintf("chunk[%d] %s", c.Index, c.Interval)
}

// Split plans the chunk sequence for an interval: an ordered, contiguous,
// non-overlapping cover of the input where no chunk spans more than maxDays
// days. The last chunk may be narrower. Returns ErrInvalidWidth if maxDays
// is not positive and ErrInvalidInterval if the interval is inverted.
func Split(iv Interval, maxDays int) ([]Chunk, error) {
	if maxDays <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWidth, maxDays)
	}
	// Guards intervals built as struct literals, bypassing NewInterval.
	if iv.From.After(iv.To) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidInterval, iv.From.Format(DateFormat), iv.To.Format(DateFormat))
	}

	chunks := make([]Chunk, 0, (iv.Days()+maxDays-1)/maxDays)
	cursor := iv.From
	for !cursor.After(iv.To) {
		end := cursor.Add(time.Duration(maxDays-1) * day)
		if end.After(iv.To) {
			end = iv.To
		}
		chunks = append(chunks, Chunk{
			Index:    len(chunks),
			Interval: Interval{From: cursor, To: end},
		})
		cursor = end.Add(day)
	}
	return chunks, nil
}
