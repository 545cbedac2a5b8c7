package strategy

import (
	"net/http"
	"time"

	"github.com/plannerhq/syncproxy/pkg/cache"
)

// Marker headers attached to responses served from a cache tier.
const (
	// HeaderServedFrom is set to "cache" on any response answered from a tier.
	HeaderServedFrom = "X-Served-From"

	// HeaderCachedAt carries the snapshot time of a cache-served response.
	HeaderCachedAt = "X-Cached-At"
)

// Response is the concrete value every strategy path terminates in.
// No strategy returns an error to the proxy handler: failure paths produce
// a Response too.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Write writes the response to w.
func (r *Response) Write(w http.ResponseWriter) {
	for key, values := range r.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(r.StatusCode)
	_, _ = w.Write(r.Body)
}

// fromEntry converts a cached entry into a response carrying the
// staleness markers.
func fromEntry(entry *cache.Entry) *Response {
	headers := entry.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set(HeaderServedFrom, "cache")
	headers.Set(HeaderCachedAt, entry.CachedAt.UTC().Format(time.RFC3339))

	return &Response{
		StatusCode: entry.StatusCode,
		Headers:    headers,
		Body:       entry.Body,
	}
}

// toEntry snapshots a live response for write-through.
func toEntry(resp *Response) *cache.Entry {
	return &cache.Entry{
		Body:       resp.Body,
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers.Clone(),
		CachedAt:   time.Now(),
	}
}
