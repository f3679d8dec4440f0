package ratebudget

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for budget tracking.
var (
	budgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duckport_rate_budget_remaining",
		Help: "Requests remaining in the current remote rate limit window",
	})

	budgetBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duckport_rate_budget_blocks_total",
		Help: "Total requests blocked because the budget was critical",
	})

	budgetThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duckport_rate_budget_throttles_total",
		Help: "Total requests throttled because the budget was low",
	})
)

// Response headers carrying the remote budget window.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Tracker monitors the remote request budget and gates requests.
type Tracker struct {
	store  Store
	logger zerolog.Logger
}

// NewTracker creates a tracker over the given state store.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
	}
}

// State returns the current budget state, or an assumed-healthy default when
// no header data has been seen yet.
func (t *Tracker) State(ctx context.Context) (*State, error) {
	state, ok, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load budget state: %w", err)
	}
	if !ok {
		t.logger.Debug().Msg("No budget state yet, assuming healthy")
		return defaultState(), nil
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders parses rate limit headers from a response and stores the
// new state. Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderReset)
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	now := time.Now()
	state := &State{
		Remaining:  remaining,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()

	if err := t.store.Save(ctx, state); err != nil {
		return fmt.Errorf("store budget state: %w", err)
	}

	budgetRemaining.Set(float64(remaining))

	switch {
	case state.NeedsBlock():
		t.logger.Error().
			Int("remaining", remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate budget critical - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate budget low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", remaining).
			Bool("is_healthy", state.IsHealthy).
			Msg("Rate budget updated")
	}

	return nil
}

// Allow checks whether a request may proceed. Critical budget refuses the
// request (returns false); a low budget sleeps briefly before allowing it.
func (t *Tracker) Allow(ctx context.Context) (bool, error) {
	state, err := t.State(ctx)
	if err != nil {
		return false, fmt.Errorf("budget check: %w", err)
	}

	if state.NeedsBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait", state.TimeUntilReset()).
			Msg("Rate budget critical - blocking request")
		budgetBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Rate budget low - throttling request")
		budgetThrottlesTotal.Inc()

		select {
		case <-time.After(throttleDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return true, nil
}
