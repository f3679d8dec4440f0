// Package ratebudget tracks the remote analytics API's request budget and
// gates outgoing requests. The API reports its window via the
// X-RateLimit-Remaining and X-RateLimit-Reset response headers; exhausting
// the budget gets the project locked out, so requests stop before the limit
// is hit.
package ratebudget

import (
	"time"
)

// Thresholds for budget decisions.
const (
	// BudgetThresholdCritical blocks all requests when the remaining
	// budget falls below this value, keeping headroom for in-flight calls.
	BudgetThresholdCritical = 2

	// BudgetThresholdWarning applies throttling when the remaining budget
	// falls below this value.
	BudgetThresholdWarning = 10

	// BudgetThresholdHealthy indicates normal operation. At or above this
	// value no restrictions apply.
	BudgetThresholdHealthy = 30
)

// throttleDelay is the pause applied per request in the warning band.
const throttleDelay = 1 * time.Second

// State is the current request budget window. With a Redis-backed store the
// state is shared across every process exporting the same project.
type State struct {
	// Remaining is the number of requests left in the current window,
	// from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets, derived from the
	// X-RateLimit-Reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last refreshed from headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= BudgetThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsBlock returns true when requests must stop until the window resets.
func (s *State) NeedsBlock() bool {
	return s.Remaining < BudgetThresholdCritical
}

// NeedsThrottling returns true when requests should slow down.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < BudgetThresholdWarning && !s.NeedsBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0 if the
// reset time already passed.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= BudgetThresholdHealthy
}

// defaultState assumes a healthy budget until real header data arrives.
func defaultState() *State {
	return &State{
		Remaining:  60,
		ResetAt:    time.Now().Add(60 * time.Second),
		LastUpdate: time.Now(),
		IsHealthy:  true,
	}
}
