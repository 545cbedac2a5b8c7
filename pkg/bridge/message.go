// Package bridge implements the bidirectional message channel between the
// coordinator and its foreground clients: a server-sent-events broadcast
// stream outbound, JSON commands inbound.
package bridge

import "encoding/json"

// Worker-to-client message types.
const (
	// TypeSyncSuccess announces a queued mutation reached the origin.
	TypeSyncSuccess = "sync-success"

	// TypeSyncFailed announces a queued mutation was rejected (4xx).
	TypeSyncFailed = "sync-failed"

	// TypeSyncDeadLetter announces a mutation was abandoned after the
	// retry ceiling.
	TypeSyncDeadLetter = "sync-dead-letter"

	// TypeVersionActivated announces a worker version finished activating.
	TypeVersionActivated = "version-activated"

	// TypeUpdateAvailable announces a new version is staged.
	TypeUpdateAvailable = "update-available"

	// TypePush carries a normalized push notification.
	TypePush = "push"

	// TypeCacheStatus is the reply to a GET_CACHE_STATUS command.
	TypeCacheStatus = "CACHE_STATUS"
)

// Client-to-worker command types.
const (
	// CmdSkipWaiting force-activates the staged version.
	CmdSkipWaiting = "SKIP_WAITING"

	// CmdCacheURLs pre-warms the runtime tier with a list of routes.
	CmdCacheURLs = "CACHE_URLS"

	// CmdGetCacheStatus requests a CACHE_STATUS reply.
	CmdGetCacheStatus = "GET_CACHE_STATUS"
)

// Message is a worker-to-client broadcast or command reply.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	URL     string          `json:"url,omitempty"`
	Version string          `json:"version,omitempty"`
	Cached  *bool           `json:"cached,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Command is a client-to-worker request. Commands are idempotent and
// order-independent: replaying one twice produces the same end state.
type Command struct {
	Type string   `json:"type"`
	URLs []string `json:"urls,omitempty"`
}
