// Package worker wires the coordinator together: classification, strategy
// execution, the mutation queue, sync triggers, and the client bridge, under
// an explicit install/activate/serve lifecycle keyed to the worker version.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/plannerhq/syncproxy/pkg/bridge"
	"github.com/plannerhq/syncproxy/pkg/cache"
	"github.com/plannerhq/syncproxy/pkg/classify"
	"github.com/plannerhq/syncproxy/pkg/config"
	"github.com/plannerhq/syncproxy/pkg/health"
	"github.com/plannerhq/syncproxy/pkg/queue"
	"github.com/plannerhq/syncproxy/pkg/strategy"
	"github.com/plannerhq/syncproxy/pkg/trigger"
)

// Coordinator is the process-wide state of the offline coordinator. All
// mutations of shared state go through its methods; there is no teardown
// beyond Shutdown, since the host controls process lifetime.
type Coordinator struct {
	cfg        *config.Config
	classifier *classify.Classifier
	exec       *strategy.Executor
	queue      *queue.Queue
	hub        *bridge.Hub
	tracker    *health.Tracker
	triggers   *trigger.Coordinator
	redis      *redis.Client
	logger     zerolog.Logger

	// mu guards tiers and staged during version swaps.
	mu     sync.Mutex
	tiers  *cache.Manager
	staged string

	ready    atomic.Bool
	inflight sync.WaitGroup

	precache map[string]bool
}

// New assembles a coordinator from its collaborators.
func New(cfg *config.Config, redisClient *redis.Client, q *queue.Queue, logger zerolog.Logger) (*Coordinator, error) {
	origin, err := url.Parse(cfg.OriginURL)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}

	c := &Coordinator{
		cfg:        cfg,
		classifier: classify.New(cfg.PublicHost, cfg.APIPrefix),
		queue:      q,
		hub:        bridge.NewHub(logger.With().Str("component", "bridge").Logger()),
		tracker:    health.NewTracker(redisClient, logger.With().Str("component", "health").Logger()),
		redis:      redisClient,
		logger:     logger,
		tiers:      cache.NewManager(redisClient, cfg.Version, logger.With().Str("component", "cache").Logger()),
		precache:   make(map[string]bool, len(cfg.PrecacheRoutes)),
	}

	for _, route := range cfg.PrecacheRoutes {
		c.precache[normalizeRoute(route)] = true
	}

	// The executor reads tiers through the coordinator so version swaps
	// take effect without rebuilding it.
	c.exec = strategy.New(c, origin, cfg.NetworkTimeout, cfg.OfflinePage,
		logger.With().Str("component", "strategy").Logger())

	c.triggers = trigger.New(c.drainQueue, c.probeOrigin, c.tracker,
		cfg.ProbeInterval, cfg.SyncInterval,
		logger.With().Str("component", "trigger").Logger())

	return c, nil
}

// Hub exposes the client messaging bridge.
func (c *Coordinator) Hub() *bridge.Hub {
	return c.hub
}

// SetHTTPClient sets a custom HTTP client on the executor (for testing).
func (c *Coordinator) SetHTTPClient(client *http.Client) {
	c.exec.SetHTTPClient(client)
}

// manager returns the tier manager for the currently active version.
func (c *Coordinator) manager() *cache.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tiers
}

// Read implements strategy.TierStore against the active tier manager.
func (c *Coordinator) Read(ctx context.Context, tier cache.Tier, identity cache.Identity) (*cache.Entry, error) {
	return c.manager().Read(ctx, tier, identity)
}

// Write implements strategy.TierStore against the active tier manager.
func (c *Coordinator) Write(ctx context.Context, tier cache.Tier, identity cache.Identity, entry *cache.Entry) {
	c.manager().Write(ctx, tier, identity, entry)
}

// Version returns the currently active worker version.
func (c *Coordinator) Version() string {
	return c.manager().Version()
}

// Start runs install and activate for the configured version, then starts
// the sync trigger loops. The coordinator serves 503 until activation
// completes, so no request is ever answered using a stale tier.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.Install(ctx); err != nil {
		return err
	}
	if err := c.Activate(ctx); err != nil {
		return err
	}

	go c.triggers.Run(ctx)
	return nil
}

// Install ensures all tiers exist and pre-populates the static tier with
// the configured precache routes. Individual route failures are logged and
// skipped; an unreachable origin at install time only means a cold cache.
func (c *Coordinator) Install(ctx context.Context) error {
	mgr := c.manager()

	if err := mgr.EnsureAll(ctx); err != nil {
		return fmt.Errorf("ensure tiers: %w", err)
	}

	for _, route := range c.cfg.PrecacheRoutes {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, route, nil)
		if err != nil {
			c.logger.Warn().Err(err).Str("route", route).Msg("Invalid precache route")
			continue
		}

		resp, err := c.exec.Forward(ctx, req)
		if err != nil || resp.StatusCode != http.StatusOK {
			c.logger.Warn().Err(err).Str("route", route).Msg("Precache fetch failed")
			continue
		}

		mgr.Write(ctx, cache.TierStatic, cache.IdentityFromURL(req.URL), &cache.Entry{
			Body:       resp.Body,
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			CachedAt:   time.Now(),
		})
	}

	c.logger.Info().
		Str("version", mgr.Version()).
		Int("precache_routes", len(c.cfg.PrecacheRoutes)).
		Msg("Install complete")

	return nil
}

// Activate purges every tier from older versions, then marks the
// coordinator ready. The purge runs to completion first.
func (c *Coordinator) Activate(ctx context.Context) error {
	mgr := c.manager()

	purged, err := mgr.PurgeStaleTiers(ctx)
	if err != nil {
		return fmt.Errorf("purge stale tiers: %w", err)
	}

	c.ready.Store(true)
	c.hub.Broadcast(bridge.Message{Type: bridge.TypeVersionActivated, Version: mgr.Version()})

	c.logger.Info().
		Str("version", mgr.Version()).
		Int("tiers_purged", purged).
		Msg("Activated")

	return nil
}

// Ready reports whether activation has completed.
func (c *Coordinator) Ready() bool {
	return c.ready.Load()
}

// StageVersion records a pending version and notifies clients an update is
// available. The version takes over on SkipWaiting.
func (c *Coordinator) StageVersion(version string) {
	c.mu.Lock()
	c.staged = version
	c.mu.Unlock()

	c.hub.Broadcast(bridge.Message{Type: bridge.TypeUpdateAvailable, Version: version})
	c.logger.Info().Str("version", version).Msg("Version staged")
}

// SkipWaiting force-activates the staged version: swap the tier manager,
// re-install, re-activate (purging the old version's tiers). Idempotent:
// with nothing staged it is a no-op.
func (c *Coordinator) SkipWaiting(ctx context.Context) error {
	c.mu.Lock()
	version := c.staged
	if version == "" || version == c.tiers.Version() {
		c.staged = ""
		c.mu.Unlock()
		return nil
	}
	c.staged = ""
	c.tiers = cache.NewManager(c.redis, version,
		c.logger.With().Str("component", "cache").Logger())
	c.mu.Unlock()

	c.ready.Store(false)

	if err := c.Install(ctx); err != nil {
		return err
	}
	return c.Activate(ctx)
}

// CacheURLs pre-warms the runtime tier with the given routes. Idempotent:
// re-warming a cached route overwrites it with the same fresh content.
func (c *Coordinator) CacheURLs(ctx context.Context, urls []string) {
	for _, raw := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", raw).Msg("Invalid cache-urls entry")
			continue
		}

		resp, err := c.exec.Forward(ctx, req)
		if err != nil || resp.StatusCode != http.StatusOK {
			c.logger.Warn().Err(err).Str("url", raw).Msg("Pre-warm fetch failed")
			continue
		}

		c.Write(ctx, cache.TierRuntime, cache.IdentityFromURL(req.URL), &cache.Entry{
			Body:       resp.Body,
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			CachedAt:   time.Now(),
		})
	}
}

// CacheStatus reports whether the static tier holds entries, for the
// GET_CACHE_STATUS diagnostics command.
func (c *Coordinator) CacheStatus(ctx context.Context) (bool, string) {
	mgr := c.manager()
	cached, err := mgr.HasEntries(ctx, cache.TierStatic)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cache status check failed")
		return false, mgr.Version()
	}
	return cached, mgr.Version()
}

// TriggerSync runs a manual drain in the background (the background-sync
// analog) and returns immediately.
func (c *Coordinator) TriggerSync() {
	c.spawn(func() {
		c.triggers.TriggerSync(context.Background(), "manual")
	})
}

// drainQueue is the trigger coordinator's drain hook.
func (c *Coordinator) drainQueue(ctx context.Context) error {
	return c.queue.DrainAll(ctx, c.sendMutation, c.hub)
}

// sendMutation delivers one queued mutation to the origin.
func (c *Coordinator) sendMutation(ctx context.Context, m *queue.Mutation) (int, error) {
	req, err := http.NewRequestWithContext(ctx, m.Method, m.URL, strings.NewReader(m.Body))
	if err != nil {
		return 0, fmt.Errorf("build mutation request: %w", err)
	}
	for key, values := range m.Headers {
		req.Header[key] = values
	}

	resp, err := c.exec.Forward(ctx, req)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// probeOrigin checks origin reachability. Any HTTP response counts as
// reachable; only transport failure is offline.
func (c *Coordinator) probeOrigin(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.NetworkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, "/", nil)
	if err != nil {
		return err
	}

	_, err = c.exec.Forward(probeCtx, req)
	return err
}

// spawn runs detached work while keeping the coordinator's pending-work
// count accurate, so Shutdown can wait for it.
func (c *Coordinator) spawn(fn func()) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		fn()
	}()
}

// Shutdown waits for all pending background work to settle.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// normalizeRoute collapses a trailing slash for precache lookup.
func normalizeRoute(route string) string {
	if len(route) > 1 {
		return strings.TrimRight(route, "/")
	}
	return route
}
