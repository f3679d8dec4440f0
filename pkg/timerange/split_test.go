package timerange

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		iv         Interval
		maxDays    int
		wantChunks int
		wantLast   Interval
	}{
		{
			name:       "thirty days in weeks",
			iv:         MustInterval("2024-01-01", "2024-01-30"),
			maxDays:    7,
			wantChunks: 5,
			wantLast:   MustInterval("2024-01-29", "2024-01-30"),
		},
		{
			name:       "exact multiple",
			iv:         MustInterval("2024-01-01", "2024-01-14"),
			maxDays:    7,
			wantChunks: 2,
			wantLast:   MustInterval("2024-01-08", "2024-01-14"),
		},
		{
			name:       "width wider than interval",
			iv:         MustInterval("2024-01-01", "2024-01-03"),
			maxDays:    30,
			wantChunks: 1,
			wantLast:   MustInterval("2024-01-01", "2024-01-03"),
		},
		{
			name:       "single day interval",
			iv:         MustInterval("2024-05-05", "2024-05-05"),
			maxDays:    7,
			wantChunks: 1,
			wantLast:   MustInterval("2024-05-05", "2024-05-05"),
		},
		{
			name:       "daily chunks",
			iv:         MustInterval("2024-01-01", "2024-01-05"),
			maxDays:    1,
			wantChunks: 5,
			wantLast:   MustInterval("2024-01-05", "2024-01-05"),
		},
		{
			name:       "month boundary",
			iv:         MustInterval("2024-02-26", "2024-03-04"),
			maxDays:    3,
			wantChunks: 3,
			wantLast:   MustInterval("2024-03-03", "2024-03-04"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Split(tt.iv, tt.maxDays)
			if err != nil {
				t.Fatalf("Split() error: %v", err)
			}
			if len(chunks) != tt.wantChunks {
				t.Fatalf("Split() returned %d chunks, want %d", len(chunks), tt.wantChunks)
			}
			last := chunks[len(chunks)-1].Interval
			if last != tt.wantLast {
				t.Errorf("last chunk = %v, want %v", last, tt.wantLast)
			}
			assertCovers(t, tt.iv, tt.maxDays, chunks)
		})
	}
}

// assertCovers checks the planner guarantees: indexed in order, contiguous,
// within width, and exactly covering the input interval.
func assertCovers(t *testing.T, iv Interval, maxDays int, chunks []Chunk) {
	t.Helper()

	if chunks[0].Interval.From != iv.From {
		t.Errorf("first chunk starts at %v, want %v", chunks[0].Interval.From, iv.From)
	}
	if chunks[len(chunks)-1].Interval.To != iv.To {
		t.Errorf("last chunk ends at %v, want %v", chunks[len(chunks)-1].Interval.To, iv.To)
	}

	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Interval.From.After(c.Interval.To) {
			t.Errorf("chunk %d is inverted: %v", i, c.Interval)
		}
		if c.Interval.Days() > maxDays {
			t.Errorf("chunk %d spans %d days, cap is %d", i, c.Interval.Days(), maxDays)
		}
		if i > 0 {
			prevEnd := chunks[i-1].Interval.To
			if !c.Interval.From.Equal(prevEnd.Add(24 * time.Hour)) {
				t.Errorf("chunk %d not contiguous with chunk %d: %v after %v", i, i-1, c.Interval, chunks[i-1].Interval)
			}
		}
	}

	total := 0
	for _, c := range chunks {
		total += c.Interval.Days()
	}
	if total != iv.Days() {
		t.Errorf("chunks cover %d days, interval has %d", total, iv.Days())
	}
}

func TestSplit_InvalidWidth(t *testing.T) {
	iv := MustInterval("2024-01-01", "2024-01-30")

	for _, width := range []int{0, -1, -7} {
		if _, err := Split(iv, width); !errors.Is(err, ErrInvalidWidth) {
			t.Errorf("Split(width=%d) error = %v, want ErrInvalidWidth", width, err)
		}
	}
}

func TestSplit_InvertedInterval(t *testing.T) {
	a := MustInterval("2024-01-01", "2024-01-01")
	b := MustInterval("2024-02-01", "2024-02-01")
	inverted := Interval{From: b.From, To: a.To}

	if _, err := Split(inverted, 7); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("Split(inverted interval) error = %v, want ErrInvalidInterval", err)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	iv := MustInterval("2023-11-14", "2024-02-02")

	first, err := Split(iv, 5)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	second, err := Split(iv, 5)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Split() is not deterministic for identical arguments")
	}
}
