// Package testutil provides testing utilities for the duckport client and
// export flow.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock API endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock analytics API server for testing.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount    int
	LastRequestAuth string
	LastQuery       map[string]string
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		user, _, _ := r.BasicAuth()
		mock.LastRequestAuth = user
		mock.LastQuery = map[string]string{}
		for k := range r.URL.Query() {
			mock.LastQuery[k] = r.URL.Query().Get(k)
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestAuth = ""
	m.LastQuery = nil
}

// Requests returns the request count.
func (m *MockAPI) Requests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a static response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		fmt.Fprint(w, resp.Body)
	})
}

// ServeExportPages wires the export endpoint to serve the given pages of
// line-delimited events, chained by cursor. Each call serves the page the
// "cursor" query selects; all but the last carry an X-Next-Cursor header.
func (m *MockAPI) ServeExportPages(path string, pages [][]map[string]any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page := 0
		if c := r.URL.Query().Get("cursor"); c != "" {
			n, err := strconv.Atoi(c)
			if err != nil || n < 0 || n >= len(pages) {
				http.Error(w, "bad cursor", http.StatusBadRequest)
				return
			}
			page = n
		}

		if page < len(pages)-1 {
			w.Header().Set("X-Next-Cursor", strconv.Itoa(page+1))
		}
		w.WriteHeader(http.StatusOK)
		for _, event := range pages[page] {
			data, _ := json.Marshal(event)
			w.Write(data)
			w.Write([]byte("\n"))
		}
	})
}

// ServeEngagePages wires the engage endpoint to serve the given profile
// pages under one session id, following the session_id/page protocol.
func (m *MockAPI) ServeEngagePages(path, sessionID string, pages [][]map[string]any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page := 0
		if p := r.URL.Query().Get("page"); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 || n >= len(pages) {
				http.Error(w, "bad page", http.StatusBadRequest)
				return
			}
			page = n
		}

		total := 0
		for _, p := range pages {
			total += len(p)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"results":    pages[page],
			"session_id": sessionID,
			"page":       page,
			"total":      total,
		})
	})
}
