// Package classify assigns every intercepted request to a handling strategy.
//
// Classification is deterministic and side-effect-free: it looks only at the
// request descriptor, so the full rule table can be unit-tested on synthetic
// requests without any network or storage.
package classify

import (
	"net/http"
	"path"
	"strings"
)

// Strategy identifies how an intercepted request is handled.
type Strategy string

const (
	// Skip passes the request through untouched (no caching, no queueing).
	Skip Strategy = "skip"

	// Static serves via cache-first with offline-page fallback.
	Static Strategy = "static"

	// API serves via network-first with cache fallback.
	API Strategy = "api"

	// Image serves via cache-first with empty-image fallback.
	Image Strategy = "image"

	// Mutation forwards the write and queues it on network failure.
	Mutation Strategy = "mutation"
)

// Request is the descriptor the classifier inspects.
type Request struct {
	// Method is the HTTP method.
	Method string

	// Host is the request's target host.
	Host string

	// Path is the URL path.
	Path string

	// Destination is the Sec-Fetch-Dest header value, when present.
	Destination string

	// Accept is the Accept header value.
	Accept string
}

// FromHTTP builds a descriptor from an incoming request.
func FromHTTP(r *http.Request) Request {
	return Request{
		Method:      r.Method,
		Host:        r.Host,
		Path:        r.URL.Path,
		Destination: r.Header.Get("Sec-Fetch-Dest"),
		Accept:      r.Header.Get("Accept"),
	}
}

// Classifier holds the app's public host and API prefix the rules key off.
type Classifier struct {
	publicHost string
	apiPrefix  string
}

// New creates a classifier for the given public host and API path prefix.
// publicHost is the host clients address the app at (the proxy's own
// advertised host); empty accepts any host.
func New(publicHost, apiPrefix string) *Classifier {
	return &Classifier{
		publicHost: publicHost,
		apiPrefix:  apiPrefix,
	}
}

// Classify applies the rule table in priority order:
//
//  1. non-GET to the API prefix -> Mutation
//  2. non-GET otherwise -> Skip
//  3. host other than the public host -> Skip (not app traffic)
//  4. GET navigation -> Static
//  5. GET to the API prefix -> API
//  6. GET with image destination -> Image
//  7. GET otherwise -> Static
func (c *Classifier) Classify(r Request) Strategy {
	isAPI := strings.HasPrefix(r.Path, c.apiPrefix)

	if r.Method != http.MethodGet {
		if isAPI {
			return Mutation
		}
		return Skip
	}

	if c.publicHost != "" && r.Host != "" && r.Host != c.publicHost {
		return Skip
	}

	if IsNavigation(r) {
		return Static
	}

	if isAPI {
		return API
	}

	if isImage(r) {
		return Image
	}

	return Static
}

// IsNavigation reports whether the request is an HTML document load.
// Navigations get the offline page as their last-resort fallback.
func IsNavigation(r Request) bool {
	if r.Destination == "document" {
		return true
	}
	return strings.Contains(r.Accept, "text/html")
}

// imageExtensions covers image paths from clients that send no
// Sec-Fetch-Dest header.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".svg":  true,
	".ico":  true,
	".avif": true,
}

// isImage reports whether the request targets an image resource.
func isImage(r Request) bool {
	if r.Destination == "image" {
		return true
	}
	if strings.Contains(r.Accept, "image/") && !strings.Contains(r.Accept, "text/html") {
		return true
	}
	return imageExtensions[strings.ToLower(path.Ext(r.Path))]
}
