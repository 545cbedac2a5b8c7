// Package push normalizes push notification payloads and routes
// notification clicks. The coordinator displays and routes notifications;
// their business meaning belongs to the payload producer.
package push

import (
	"encoding/json"
	"strings"
)

// Defaults applied when a payload field is absent.
const (
	DefaultTitle = "Wedding Planner"
	DefaultIcon  = "/icons/icon-192x192.png"
	DefaultBadge = "/icons/badge-72x72.png"
	DefaultTag   = "wedding-planner"
	DefaultURL   = "/dashboard"
)

// Action is one notification action button.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Notification is a fully normalized notification ready for display.
type Notification struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon"`
	Badge              string   `json:"badge"`
	Tag                string   `json:"tag"`
	URL                string   `json:"url"`
	RequireInteraction bool     `json:"requireInteraction"`
	Actions            []Action `json:"actions"`
}

// payload is the raw push payload contract: every field optional.
type payload struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Message            string   `json:"message"`
	Icon               string   `json:"icon"`
	Badge              string   `json:"badge"`
	Tag                string   `json:"tag"`
	URL                string   `json:"url"`
	RequireInteraction bool     `json:"requireInteraction"`
	Actions            []Action `json:"actions"`
}

// Normalize parses a raw push payload and fills every absent field with its
// default. Malformed JSON yields a pure-default notification rather than an
// error: a push must always display something.
func Normalize(raw []byte) Notification {
	var p payload
	if len(raw) > 0 {
		// Best effort; a partial decode keeps whatever parsed.
		_ = json.Unmarshal(raw, &p)
	}

	n := Notification{
		Title:              p.Title,
		Body:               p.Body,
		Icon:               p.Icon,
		Badge:              p.Badge,
		Tag:                p.Tag,
		URL:                p.URL,
		RequireInteraction: p.RequireInteraction,
		Actions:            p.Actions,
	}

	if n.Title == "" {
		n.Title = DefaultTitle
	}
	if n.Body == "" {
		n.Body = p.Message
	}
	if n.Icon == "" {
		n.Icon = DefaultIcon
	}
	if n.Badge == "" {
		n.Badge = DefaultBadge
	}
	if n.Tag == "" {
		n.Tag = DefaultTag
	}
	if n.URL == "" {
		n.URL = DefaultURL
	}
	if n.Actions == nil {
		n.Actions = []Action{}
	}

	return n
}

// DecisionKind is the outcome of a notification click.
type DecisionKind string

const (
	// Focus brings an existing window to the foreground.
	Focus DecisionKind = "focus"

	// Open opens a new window at the target URL.
	Open DecisionKind = "open"

	// Dismiss closes the notification without navigation.
	Dismiss DecisionKind = "dismiss"
)

// Window describes one currently open client window.
type Window struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Decision is the routing outcome for a notification click.
type Decision struct {
	Kind     DecisionKind `json:"kind"`
	WindowID string       `json:"windowId,omitempty"`
	URL      string       `json:"url,omitempty"`
}

// RouteClick decides what a notification click does: the close action
// dismisses; a window already at the target URL is focused; otherwise a new
// window opens.
func RouteClick(action, targetURL string, open []Window) Decision {
	if action == "close" || action == "dismiss" {
		return Decision{Kind: Dismiss}
	}

	if targetURL == "" {
		targetURL = DefaultURL
	}

	for _, w := range open {
		if samePath(w.URL, targetURL) {
			return Decision{Kind: Focus, WindowID: w.ID, URL: targetURL}
		}
	}

	return Decision{Kind: Open, URL: targetURL}
}

// samePath compares URLs ignoring a trailing slash.
func samePath(a, b string) bool {
	trim := func(s string) string {
		if len(s) > 1 {
			return strings.TrimRight(s, "/")
		}
		return s
	}
	return trim(a) == trim(b)
}
