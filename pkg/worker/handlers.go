package worker

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/plannerhq/syncproxy/pkg/bridge"
	"github.com/plannerhq/syncproxy/pkg/cache"
	"github.com/plannerhq/syncproxy/pkg/classify"
	"github.com/plannerhq/syncproxy/pkg/push"
	"github.com/plannerhq/syncproxy/pkg/queue"
	"github.com/plannerhq/syncproxy/pkg/strategy"
)

// queuedResponse is the acceptance envelope for a diverted mutation.
type queuedResponse struct {
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

// ServeProxy is the fetch interception point: classify, dispatch to a
// strategy, and always end in a concrete response.
func (c *Coordinator) ServeProxy(w http.ResponseWriter, r *http.Request) {
	if !c.Ready() {
		http.Error(w, "coordinator activating", http.StatusServiceUnavailable)
		return
	}

	// Traffic addressed to another host has no business with the origin;
	// answering it here would impersonate its real target.
	if c.cfg.PublicHost != "" && r.Host != "" && r.Host != c.cfg.PublicHost {
		http.Error(w, "misdirected request", http.StatusMisdirectedRequest)
		return
	}

	desc := classify.FromHTTP(r)
	strat := c.classifier.Classify(desc)

	c.logger.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("strategy", string(strat)).
		Msg("Classified request")

	switch strat {
	case classify.Skip:
		c.passThrough(w, r)

	case classify.Mutation:
		c.serveMutation(w, r)

	case classify.API:
		c.exec.NetworkFirst(r.Context(), r, cache.TierAPI).Write(w)

	case classify.Image:
		c.exec.CacheFirst(r.Context(), r, cache.TierImages, strategy.FallbackImage).Write(w)

	default: // classify.Static
		fallback := strategy.FallbackAsset
		if classify.IsNavigation(desc) {
			fallback = strategy.FallbackNavigation
		}
		c.exec.CacheFirst(r.Context(), r, c.staticTier(r), fallback).Write(w)
	}
}

// staticTier picks the tier for a static-strategy request: precached shell
// routes belong to the static tier, everything else is cached on first use
// in the runtime tier.
func (c *Coordinator) staticTier(r *http.Request) cache.Tier {
	if c.precache[normalizeRoute(r.URL.Path)] {
		return cache.TierStatic
	}
	return cache.TierRuntime
}

// passThrough forwards app traffic the coordinator does not intercept
// (non-GET requests outside the API prefix): straight to the origin, no
// caching, no queueing.
func (c *Coordinator) passThrough(w http.ResponseWriter, r *http.Request) {
	resp, err := c.exec.Forward(r.Context(), r)
	if err != nil {
		http.Error(w, "origin unreachable", http.StatusBadGateway)
		return
	}
	resp.Write(w)
}

// serveMutation forwards a write; a transport failure diverts it to the
// durable queue and answers 202 so the client can optimistically continue.
// HTTP error statuses pass through untouched: the origin has spoken.
func (c *Coordinator) serveMutation(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := c.exec.Forward(r.Context(), r)
	if err == nil {
		resp.Write(w)
		return
	}

	id, qErr := c.queue.Enqueue(r.Context(), queue.SnapshotFromRequest(r, body))
	if qErr != nil {
		c.logger.Error().Err(qErr).Str("path", r.URL.Path).Msg("Failed to queue mutation")
		http.Error(w, "origin unreachable and queueing failed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(queuedResponse{
		Queued:  true,
		Message: "Saved offline, will sync when connection returns",
		ID:      id,
	})
}

// ServeMessage handles client commands.
func (c *Coordinator) ServeMessage(w http.ResponseWriter, r *http.Request) {
	var cmd bridge.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid command", http.StatusBadRequest)
		return
	}

	switch cmd.Type {
	case bridge.CmdSkipWaiting:
		if err := c.SkipWaiting(r.Context()); err != nil {
			c.logger.Error().Err(err).Msg("Skip-waiting activation failed")
			http.Error(w, "activation failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case bridge.CmdCacheURLs:
		c.CacheURLs(r.Context(), cmd.URLs)
		w.WriteHeader(http.StatusNoContent)

	case bridge.CmdGetCacheStatus:
		cached, version := c.CacheStatus(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(bridge.Message{
			Type:    bridge.TypeCacheStatus,
			Cached:  &cached,
			Version: version,
		})

	default:
		http.Error(w, "unknown command type", http.StatusBadRequest)
	}
}

// ServeSync handles explicit sync requests from clients or schedulers.
func (c *Coordinator) ServeSync(w http.ResponseWriter, r *http.Request) {
	c.TriggerSync()
	w.WriteHeader(http.StatusAccepted)
}

// ServePush accepts a push payload, normalizes it, and broadcasts the
// notification to all connected clients.
func (c *Coordinator) ServePush(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}

	notification := push.Normalize(raw)
	payload, err := json.Marshal(notification)
	if err != nil {
		http.Error(w, "failed to encode notification", http.StatusInternalServerError)
		return
	}

	c.hub.Broadcast(bridge.Message{Type: bridge.TypePush, Payload: payload})
	w.WriteHeader(http.StatusAccepted)
}

// notificationClick is the client's report of a notification interaction.
type notificationClick struct {
	Action  string        `json:"action"`
	URL     string        `json:"url"`
	Windows []push.Window `json:"windows"`
}

// ServeNotificationClick routes a notification click: focus an existing
// window at the target URL, open a new one, or dismiss.
func (c *Coordinator) ServeNotificationClick(w http.ResponseWriter, r *http.Request) {
	var click notificationClick
	if err := json.NewDecoder(r.Body).Decode(&click); err != nil {
		http.Error(w, "invalid click report", http.StatusBadRequest)
		return
	}

	decision := push.RouteClick(click.Action, click.URL, click.Windows)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(decision)
}

// ServeStageVersion lets the deployer stage a new worker version.
func (c *Coordinator) ServeStageVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Version == "" {
		http.Error(w, "version required", http.StatusBadRequest)
		return
	}

	c.StageVersion(req.Version)
	w.WriteHeader(http.StatusAccepted)
}
