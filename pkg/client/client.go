// Package client provides the remote analytics API client with rate budget
// gating, retry with backoff, and error classification. Its fetchers plug
// into the export engine as PageFetcher implementations; the engine itself
// never retries, so transient faults are absorbed here.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/telemetrydock/duckport/pkg/ratebudget"
)

// Prometheus metrics for API client operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duckport_api_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "duckport_api_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duckport_api_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the analytics API, e.g. "https://data.example-analytics.com".
	BaseURL string

	// APISecret authenticates requests (HTTP basic auth, secret as username).
	APISecret string

	// UserAgent identifies this tool to the remote service.
	UserAgent string

	// Budget gates requests against the remote rate limit window.
	// Required; use an in-memory store when nothing is shared.
	Budget *ratebudget.Tracker

	// Timeout per HTTP request.
	Timeout time.Duration

	// Retry overrides the per-request backoff schedule. The zero value
	// adapts the schedule to each failure's error class.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, apiSecret string) Config {
	return Config{
		BaseURL:   baseURL,
		APISecret: apiSecret,
		UserAgent: "duckport/0.1.0",
		Budget:    ratebudget.NewTracker(ratebudget.NewMemoryStore(), log.Logger),
		Timeout:   60 * time.Second,
	}
}

// Client is the analytics API HTTP client.
type Client struct {
	httpClient *http.Client
	config     Config
	budget     *ratebudget.Tracker
	logger     zerolog.Logger
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.APISecret == "" {
		return nil, fmt.Errorf("api secret is required")
	}
	if cfg.Budget == nil {
		return nil, fmt.Errorf("rate budget tracker is required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "duckport/0.1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		budget: cfg.Budget,
		logger: log.With().Str("component", "api-client").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// get performs a GET against an API endpoint with budget gating, retry, and
// classification. The caller owns the response body on success.
func (c *Client) get(ctx context.Context, endpoint string, query map[string]string) (*http.Response, error) {
	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	allowed, err := c.budget.Allow(ctx)
	if err != nil {
		return nil, fmt.Errorf("budget check: %w", err)
	}
	if !allowed {
		c.logger.Warn().Str("endpoint", endpoint).Msg("Request blocked by rate budget")
		apiRequestsTotal.WithLabelValues(endpoint, "budget_blocked").Inc()
		return nil, ErrBudgetExhausted
	}

	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.config.Retry, func() (ErrorClass, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
		if err != nil {
			return ErrorClassClient, fmt.Errorf("create request: %w", err)
		}
		q := req.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
		req.SetBasicAuth(c.config.APISecret, "")
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")

		r, reqErr := c.httpClient.Do(req)
		if reqErr != nil {
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			if !isTemporaryNetErr(reqErr) {
				return ErrorClassClient, reqErr
			}
			return ErrorClassNetwork, reqErr
		}

		if err := c.budget.UpdateFromHeaders(ctx, r.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate budget from headers")
		}

		apiRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", r.StatusCode)).Inc()

		if r.StatusCode >= 400 {
			errClass := classify(r.StatusCode)
			apiErrorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", r.StatusCode).
				Str("error_class", string(errClass)).
				Msg("API request error")

			body, _ := io.ReadAll(io.LimitReader(r.Body, 512))
			r.Body.Close()
			return errClass, &APIError{
				StatusCode: r.StatusCode,
				ErrorClass: errClass,
				Message:    firstLine(string(body), r.Status),
			}
		}

		resp = r
		return "", nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return resp, nil
}

// firstLine trims an error body to a single displayable line.
func firstLine(body, fallback string) string {
	for i := 0; i < len(body); i++ {
		if body[i] == '\n' {
			body = body[:i]
			break
		}
	}
	if body == "" {
		return fallback
	}
	return body
}
