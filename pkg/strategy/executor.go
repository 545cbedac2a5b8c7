// Package strategy implements the read strategies of the offline
// coordinator: cache-first for static assets and images, network-first with
// timeout for API reads. Every path terminates in a concrete Response.
package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/plannerhq/syncproxy/pkg/cache"
)

// TierStore is the cache surface the executors need. Satisfied by
// *cache.Manager; tests substitute an in-memory implementation.
type TierStore interface {
	Read(ctx context.Context, tier cache.Tier, identity cache.Identity) (*cache.Entry, error)
	Write(ctx context.Context, tier cache.Tier, identity cache.Identity, entry *cache.Entry)
}

// FallbackKind selects the synthetic response served when both network and
// cache fail on a cache-first path.
type FallbackKind string

const (
	// FallbackNavigation serves the offline page.
	FallbackNavigation FallbackKind = "navigation"

	// FallbackImage serves an empty 404-equivalent.
	FallbackImage FallbackKind = "image"

	// FallbackAsset serves a generic 503 text.
	FallbackAsset FallbackKind = "asset"
)

// offlineEnvelope is the structured error returned for API reads with no
// network and no cached copy.
type offlineEnvelope struct {
	Error     string `json:"error"`
	Offline   bool   `json:"offline"`
	Timestamp string `json:"timestamp"`
}

// Executor runs read strategies against the origin and the cache tiers.
type Executor struct {
	store       TierStore
	client      *http.Client
	origin      *url.URL
	timeout     time.Duration
	offlinePage string
	logger      zerolog.Logger
}

// New creates a strategy executor.
// timeout bounds the network leg of the network-first strategy.
func New(store TierStore, origin *url.URL, timeout time.Duration, offlinePage string, logger zerolog.Logger) *Executor {
	return &Executor{
		store:       store,
		client:      &http.Client{Timeout: 30 * time.Second},
		origin:      origin,
		timeout:     timeout,
		offlinePage: offlinePage,
		logger:      logger,
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (e *Executor) SetHTTPClient(client *http.Client) {
	e.client = client
}

// CacheFirst serves from the tier when possible, reaching the network only
// on a miss. Speed over freshness: a hit returns without touching the
// network at all.
func (e *Executor) CacheFirst(ctx context.Context, req *http.Request, tier cache.Tier, fallback FallbackKind) *Response {
	identity := cache.IdentityFromURL(req.URL)

	entry, err := e.store.Read(ctx, tier, identity)
	if err == nil {
		ServedFromCache.WithLabelValues("cache_first").Inc()
		return fromEntry(entry)
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		// Storage trouble degrades to network-only, never fails the request.
		e.logger.Warn().Err(err).Str("tier", string(tier)).Msg("Cache read error")
	}

	resp, err := e.Forward(ctx, req)
	if err != nil {
		e.logger.Debug().Err(err).
			Str("path", req.URL.Path).
			Str("fallback", string(fallback)).
			Msg("Network unavailable for cache-first miss")
		return e.cacheFirstFallback(ctx, fallback)
	}

	if resp.StatusCode == http.StatusOK {
		e.store.Write(ctx, tier, identity, toEntry(resp))
	}

	return resp
}

// NetworkFirst prefers a live response within the configured timeout and
// falls back to the tier only on failure. The cache is never primary while
// the network is healthy: that ordering keeps planning data fresh.
func (e *Executor) NetworkFirst(ctx context.Context, req *http.Request, tier cache.Tier) *Response {
	identity := cache.IdentityFromURL(req.URL)

	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.Forward(fetchCtx, req)
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			e.store.Write(ctx, tier, identity, toEntry(resp))
		}
		return resp
	}

	e.logger.Debug().Err(err).Str("path", req.URL.Path).Msg("API fetch failed, trying cache")

	entry, cacheErr := e.store.Read(ctx, tier, identity)
	if cacheErr == nil {
		ServedFromCache.WithLabelValues("network_first").Inc()
		e.logger.Warn().
			Str("path", req.URL.Path).
			Time("cached_at", entry.CachedAt).
			Msg("Serving API response from cache")
		return fromEntry(entry)
	}

	OfflineFallbacks.WithLabelValues("api").Inc()
	return offlineError(fmt.Sprintf("offline and no cached data for %s", req.URL.Path))
}

// Forward sends the request to the origin and returns the full response, or
// an error on transport failure (connection refused, timeout). HTTP error
// statuses are not transport failures: the response passes through.
func (e *Executor) Forward(ctx context.Context, req *http.Request) (*Response, error) {
	outReq, err := e.rewrite(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := e.client.Do(outReq)
	FetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(outReq.Context().Err(), context.DeadlineExceeded) {
			OriginFetches.WithLabelValues("timeout").Inc()
		} else {
			OriginFetches.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("origin fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		OriginFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read origin response: %w", err)
	}

	OriginFetches.WithLabelValues("ok").Inc()
	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    filterHopByHop(resp.Header),
		Body:       body,
	}, nil
}

// rewrite builds the outbound origin request from the intercepted one.
func (e *Executor) rewrite(ctx context.Context, req *http.Request) (*http.Request, error) {
	target := *req.URL
	target.Scheme = e.origin.Scheme
	target.Host = e.origin.Host

	var body io.Reader
	if req.Body != nil && req.Method != http.MethodGet && req.Method != http.MethodHead {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(data))
		body = bytes.NewReader(data)
	}

	outReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create origin request: %w", err)
	}

	for key, values := range filterHopByHop(req.Header) {
		outReq.Header[key] = values
	}
	outReq.Host = e.origin.Host

	return outReq, nil
}

// cacheFirstFallback produces the tier-specific synthetic response.
func (e *Executor) cacheFirstFallback(ctx context.Context, fallback FallbackKind) *Response {
	OfflineFallbacks.WithLabelValues(string(fallback)).Inc()

	switch fallback {
	case FallbackNavigation:
		// The offline page was pre-cached at install time.
		identity := cache.Identity{Path: e.offlinePage}
		if entry, err := e.store.Read(ctx, cache.TierStatic, identity); err == nil {
			return fromEntry(entry)
		}
		return textResponse(http.StatusServiceUnavailable, "You are offline and the offline page is not cached.")

	case FallbackImage:
		return &Response{
			StatusCode: http.StatusNotFound,
			Headers:    http.Header{"Content-Type": []string{"image/gif"}},
			Body:       nil,
		}

	default:
		return textResponse(http.StatusServiceUnavailable, "Service unavailable - offline")
	}
}

// offlineError builds the structured API offline envelope.
func offlineError(msg string) *Response {
	envelope := offlineEnvelope{
		Error:     msg,
		Offline:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	body, _ := json.Marshal(envelope)

	return &Response{
		StatusCode: http.StatusServiceUnavailable,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       body,
	}
}

func textResponse(status int, msg string) *Response {
	return &Response{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:       []byte(msg),
	}
}

// hopByHop lists headers that must not be forwarded between hops.
var hopByHop = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

func filterHopByHop(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, key := range hopByHop {
		out.Del(key)
	}
	return out
}
