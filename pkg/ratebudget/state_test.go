package ratebudget

import (
	"testing"
	"time"
)

func TestState_Thresholds(t *testing.T) {
	tests := []struct {
		name          string
		remaining     int
		wantBlock     bool
		wantThrottle  bool
		wantIsHealthy bool
	}{
		{
			name:          "plenty of budget",
			remaining:     55,
			wantIsHealthy: true,
		},
		{
			name:          "at healthy threshold",
			remaining:     BudgetThresholdHealthy,
			wantIsHealthy: true,
		},
		{
			name:         "warning band",
			remaining:    5,
			wantThrottle: true,
		},
		{
			name:      "critical",
			remaining: 1,
			wantBlock: true,
		},
		{
			name:      "exhausted",
			remaining: 0,
			wantBlock: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &State{Remaining: tt.remaining}
			state.UpdateHealth()

			if got := state.NeedsBlock(); got != tt.wantBlock {
				t.Errorf("NeedsBlock() = %v, want %v", got, tt.wantBlock)
			}
			if got := state.NeedsThrottling(); got != tt.wantThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.wantThrottle)
			}
			if got := state.IsHealthy; got != tt.wantIsHealthy {
				t.Errorf("IsHealthy = %v, want %v", got, tt.wantIsHealthy)
			}
		})
	}
}

func TestState_TimeUntilReset(t *testing.T) {
	future := &State{ResetAt: time.Now().Add(30 * time.Second)}
	if d := future.TimeUntilReset(); d <= 0 || d > 30*time.Second {
		t.Errorf("TimeUntilReset() = %v, want (0, 30s]", d)
	}

	past := &State{ResetAt: time.Now().Add(-time.Minute)}
	if d := past.TimeUntilReset(); d != 0 {
		t.Errorf("TimeUntilReset() for passed reset = %v, want 0", d)
	}
}

func TestState_IsStale(t *testing.T) {
	fresh := &State{LastUpdate: time.Now()}
	if fresh.IsStale(time.Minute) {
		t.Error("fresh state reported stale")
	}

	old := &State{LastUpdate: time.Now().Add(-2 * time.Minute)}
	if !old.IsStale(time.Minute) {
		t.Error("old state not reported stale")
	}
}
