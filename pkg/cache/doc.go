// Package cache implements the versioned cache tiers backing the offline
// coordinator, with a Redis backend.
//
// A tier is a named namespace of (request identity -> response snapshot).
// Four logical tiers exist: static assets, runtime pages, images, and API
// responses. Every physical tier name embeds the active worker version;
// activating a new version purges every tier whose suffix no longer matches.
//
// Entries carry no TTL. A cached response is a fallback, not an authority:
// it lives until overwritten by a fresher network response or until its tier
// is purged on a version change. The stored CachedAt timestamp is surfaced
// to callers so staleness stays visible.
//
// Storage failures on write are non-fatal: caching is a
// best-effort optimization and the read path must keep working when Redis
// misbehaves or runs out of memory.
package cache
