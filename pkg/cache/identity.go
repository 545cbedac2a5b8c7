package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Identity is the request identity a cached entry answers: the normalized
// URL path plus the relevant query string. Only GET responses are cached,
// so the method is implicit.
type Identity struct {
	// Path is the URL path (e.g. "/api/budget/categories").
	Path string

	// Query are the query parameters.
	Query url.Values
}

// IdentityFromURL builds an Identity from a request URL.
func IdentityFromURL(u *url.URL) Identity {
	return Identity{
		Path:  u.Path,
		Query: u.Query(),
	}
}

// String generates a deterministic identity string.
// Format: path?query1=val1&query2=val2 (query keys sorted).
func (id Identity) String() string {
	path := id.Path
	if path == "" {
		path = "/"
	}
	// Collapse trailing slash so /api/guests and /api/guests/ share an entry.
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}

	if len(id.Query) == 0 {
		return path
	}

	keys := make([]string, 0, len(id.Query))
	for key := range id.Query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		vals := append([]string(nil), id.Query[key]...)
		sort.Strings(vals)
		for _, val := range vals {
			parts = append(parts, fmt.Sprintf("%s=%s", key, val))
		}
	}

	return path + "?" + strings.Join(parts, "&")
}
