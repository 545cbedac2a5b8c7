// Package testutil provides testing utilities for the syncproxy coordinator.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock origin endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest captures one request the origin received.
type RecordedRequest struct {
	Method string
	Path   string
	Body   string
}

// MockOrigin is a configurable mock origin server. Setting it offline makes
// every connection fail at the transport level, the way an unreachable
// origin does.
type MockOrigin struct {
	server *httptest.Server

	mu        sync.RWMutex
	responses map[string]MockResponse
	offline   bool

	// Tracking
	RequestCount int
	Requests     []RecordedRequest
}

// NewMockOrigin creates a mock origin server.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		responses: make(map[string]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.RLock()
		offline := mock.offline
		mock.mu.RUnlock()

		if offline {
			// Kill the connection without a response: the client sees a
			// transport error, not an HTTP status.
			hj, ok := w.(http.Hijacker)
			if !ok {
				panic("mock origin: response writer does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}

		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.RequestCount++
		mock.Requests = append(mock.Requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   string(body),
		})
		resp, exists := mock.responses[r.URL.Path]
		mock.mu.Unlock()

		if !exists {
			resp = MockResponse{StatusCode: http.StatusOK, Body: "ok"}
		}

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write([]byte(resp.Body))
	}))

	return mock
}

// URL returns the mock origin's base URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// SetResponse configures the response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = resp
}

// SetOffline toggles transport-level failure for all requests.
func (m *MockOrigin) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// CountFor returns how many requests hit the given path.
func (m *MockOrigin) CountFor(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, req := range m.Requests {
		if req.Path == path {
			count++
		}
	}
	return count
}

// LastRequest returns the most recent recorded request, or nil.
func (m *MockOrigin) LastRequest() *RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.Requests) == 0 {
		return nil
	}
	req := m.Requests[len(m.Requests)-1]
	return &req
}

// Reset clears recorded requests.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Requests = nil
}
