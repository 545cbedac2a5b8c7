package cache

import (
	"net/http"
	"time"
)

// Entry represents a cached response snapshot.
type Entry struct {
	// Body is the response body.
	Body []byte `json:"body"`

	// StatusCode is the HTTP status code of the cached response.
	StatusCode int `json:"status_code"`

	// Headers are the response headers at capture time.
	Headers http.Header `json:"headers"`

	// CachedAt is when the snapshot was stored.
	CachedAt time.Time `json:"cached_at"`
}

// Age returns how long ago the entry was cached.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
