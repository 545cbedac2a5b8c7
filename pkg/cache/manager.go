package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrCacheMiss indicates the requested identity was not found in the tier.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Tier is a logical cache tier name.
type Tier string

const (
	// TierStatic holds pre-cached shell routes and static assets.
	TierStatic Tier = "static"

	// TierRuntime holds pages and assets cached on first use.
	TierRuntime Tier = "runtime"

	// TierImages holds image responses.
	TierImages Tier = "images"

	// TierAPI holds API GET responses for offline fallback.
	TierAPI Tier = "api"
)

// Tiers lists every logical tier, in creation order.
var Tiers = []Tier{TierStatic, TierRuntime, TierImages, TierAPI}

// registryKey is the redis set holding every known physical tier name.
// It stands in for enumerating cache namespaces at purge time.
const registryKey = "syncproxy:tiers"

// Manager handles tier operations with a Redis backend.
type Manager struct {
	redis   *redis.Client
	version string
	logger  zerolog.Logger
}

// NewManager creates a tier manager bound to a worker version.
func NewManager(redisClient *redis.Client, version string, logger zerolog.Logger) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if version == "" {
		panic("version cannot be empty")
	}
	return &Manager{
		redis:   redisClient,
		version: version,
		logger:  logger,
	}
}

// Version returns the worker version the manager's tiers are bound to.
func (m *Manager) Version() string {
	return m.version
}

// tierName returns the physical tier name for a logical tier.
func (m *Manager) tierName(tier Tier) string {
	return fmt.Sprintf("%s-%s", tier, m.version)
}

// entryKey returns the redis key for an identity within a tier.
func (m *Manager) entryKey(tier Tier, identity Identity) string {
	return fmt.Sprintf("tier:%s:%s", m.tierName(tier), identity.String())
}

// EnsureTier registers a tier's physical name. Calling it for an
// already-registered tier is a no-op.
func (m *Manager) EnsureTier(ctx context.Context, tier Tier) error {
	if err := m.redis.SAdd(ctx, registryKey, m.tierName(tier)).Err(); err != nil {
		return fmt.Errorf("register tier %s: %w", m.tierName(tier), err)
	}
	return nil
}

// EnsureAll registers every logical tier for the active version.
func (m *Manager) EnsureAll(ctx context.Context) error {
	for _, tier := range Tiers {
		if err := m.EnsureTier(ctx, tier); err != nil {
			return err
		}
	}
	return nil
}

// Read retrieves an entry by identity.
// Returns ErrCacheMiss if the identity has no entry in the tier.
func (m *Manager) Read(ctx context.Context, tier Tier, identity Identity) (*Entry, error) {
	data, err := m.redis.Get(ctx, m.entryKey(tier, identity)).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues(string(tier)).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(string(tier)).Inc()
	return &entry, nil
}

// Write stores an entry, overwriting any previous snapshot for the identity.
// Storage failures are logged and swallowed: the caller already holds the
// live response and caching is best-effort.
func (m *Manager) Write(ctx context.Context, tier Tier, identity Identity, entry *Entry) {
	if entry == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		m.logger.Warn().Err(err).
			Str("tier", string(tier)).
			Str("identity", identity.String()).
			Msg("Failed to marshal cache entry")
		return
	}

	// No TTL: entries live until overwritten or their tier is purged.
	if err := m.redis.Set(ctx, m.entryKey(tier, identity), data, 0).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		m.logger.Warn().Err(err).
			Str("tier", string(tier)).
			Str("identity", identity.String()).
			Msg("Cache write failed, continuing without caching")
		return
	}

	CacheWriteBytes.WithLabelValues(string(tier)).Add(float64(len(data)))
	m.logger.Debug().
		Str("tier", string(tier)).
		Str("identity", identity.String()).
		Int("bytes", len(data)).
		Msg("Cached response")
}

// PurgeStaleTiers enumerates all registered tiers and deletes every one
// whose version suffix differs from the active version. It must run to
// completion before the worker serves traffic for the new version, so no
// request is ever answered from a stale tier.
func (m *Manager) PurgeStaleTiers(ctx context.Context) (int, error) {
	names, err := m.redis.SMembers(ctx, registryKey).Result()
	if err != nil {
		CacheErrors.WithLabelValues("purge").Inc()
		return 0, fmt.Errorf("enumerate tiers: %w", err)
	}

	suffix := "-" + m.version
	purged := 0

	for _, name := range names {
		if strings.HasSuffix(name, suffix) {
			continue
		}

		if err := m.deleteTierKeys(ctx, name); err != nil {
			CacheErrors.WithLabelValues("purge").Inc()
			return purged, fmt.Errorf("purge tier %s: %w", name, err)
		}

		if err := m.redis.SRem(ctx, registryKey, name).Err(); err != nil {
			CacheErrors.WithLabelValues("purge").Inc()
			return purged, fmt.Errorf("unregister tier %s: %w", name, err)
		}

		TiersPurged.Inc()
		purged++
		m.logger.Info().Str("tier", name).Msg("Purged stale cache tier")
	}

	return purged, nil
}

// deleteTierKeys removes every entry belonging to a physical tier name.
func (m *Manager) deleteTierKeys(ctx context.Context, name string) error {
	pattern := fmt.Sprintf("tier:%s:*", name)
	var cursor uint64

	for {
		keys, next, err := m.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}

		if len(keys) > 0 {
			if err := m.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete %d keys: %w", len(keys), err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// HasEntries reports whether the tier holds at least one entry.
// Used by the cache-status diagnostics command.
func (m *Manager) HasEntries(ctx context.Context, tier Tier) (bool, error) {
	pattern := fmt.Sprintf("tier:%s:*", m.tierName(tier))
	var cursor uint64

	for {
		keys, next, err := m.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return false, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			return true, nil
		}
		cursor = next
		if cursor == 0 {
			return false, nil
		}
	}
}
