package push

import (
	"testing"
)

func TestNormalizeEmptyPayloadUsesDefaults(t *testing.T) {
	n := Normalize(nil)

	if n.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", n.Title, DefaultTitle)
	}
	if n.Icon != DefaultIcon {
		t.Errorf("Icon = %q, want %q", n.Icon, DefaultIcon)
	}
	if n.Badge != DefaultBadge {
		t.Errorf("Badge = %q, want %q", n.Badge, DefaultBadge)
	}
	if n.Tag != DefaultTag {
		t.Errorf("Tag = %q, want %q", n.Tag, DefaultTag)
	}
	if n.URL != DefaultURL {
		t.Errorf("URL = %q, want %q", n.URL, DefaultURL)
	}
	if n.Actions == nil {
		t.Error("Actions is nil, want empty slice")
	}
	if n.RequireInteraction {
		t.Error("RequireInteraction defaulted to true")
	}
}

func TestNormalizeKeepsProvidedFields(t *testing.T) {
	raw := []byte(`{
		"title": "RSVP received",
		"body": "Ada accepted",
		"icon": "/icons/rsvp.png",
		"tag": "rsvp",
		"url": "/guests",
		"requireInteraction": true,
		"actions": [{"action": "view", "title": "View guest"}]
	}`)

	n := Normalize(raw)

	if n.Title != "RSVP received" {
		t.Errorf("Title = %q", n.Title)
	}
	if n.Body != "Ada accepted" {
		t.Errorf("Body = %q", n.Body)
	}
	if n.Icon != "/icons/rsvp.png" {
		t.Errorf("Icon = %q", n.Icon)
	}
	if n.Tag != "rsvp" {
		t.Errorf("Tag = %q", n.Tag)
	}
	if n.URL != "/guests" {
		t.Errorf("URL = %q", n.URL)
	}
	if !n.RequireInteraction {
		t.Error("RequireInteraction = false")
	}
	if len(n.Actions) != 1 || n.Actions[0].Action != "view" {
		t.Errorf("Actions = %+v", n.Actions)
	}
	// Badge was absent and still gets its default.
	if n.Badge != DefaultBadge {
		t.Errorf("Badge = %q, want %q", n.Badge, DefaultBadge)
	}
}

func TestNormalizeMessageFallsBackToBody(t *testing.T) {
	n := Normalize([]byte(`{"message": "Vendor confirmed"}`))
	if n.Body != "Vendor confirmed" {
		t.Errorf("Body = %q, want message fallback", n.Body)
	}

	// Explicit body wins over message.
	n = Normalize([]byte(`{"body": "primary", "message": "secondary"}`))
	if n.Body != "primary" {
		t.Errorf("Body = %q, want primary", n.Body)
	}
}

func TestNormalizeMalformedJSON(t *testing.T) {
	n := Normalize([]byte(`{not json`))

	if n.Title != DefaultTitle {
		t.Errorf("Title = %q, want default on malformed payload", n.Title)
	}
	if n.URL != DefaultURL {
		t.Errorf("URL = %q, want default on malformed payload", n.URL)
	}
	if n.Actions == nil {
		t.Error("Actions is nil on malformed payload")
	}
}

func TestRouteClick(t *testing.T) {
	windows := []Window{
		{ID: "w1", URL: "/dashboard"},
		{ID: "w2", URL: "/guests/"},
	}

	tests := []struct {
		name       string
		action     string
		target     string
		open       []Window
		wantKind   DecisionKind
		wantWindow string
		wantURL    string
	}{
		{"close action dismisses", "close", "/guests", windows, Dismiss, "", ""},
		{"dismiss action dismisses", "dismiss", "", windows, Dismiss, "", ""},
		{"matching window focused", "", "/dashboard", windows, Focus, "w1", "/dashboard"},
		{"trailing slash still matches", "", "/guests", windows, Focus, "w2", "/guests"},
		{"no matching window opens", "", "/budget", windows, Open, "", "/budget"},
		{"no windows opens", "view", "/tasks", nil, Open, "", "/tasks"},
		{"empty target defaults", "", "", nil, Open, "", DefaultURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := RouteClick(tt.action, tt.target, tt.open)
			if d.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", d.Kind, tt.wantKind)
			}
			if d.WindowID != tt.wantWindow {
				t.Errorf("WindowID = %q, want %q", d.WindowID, tt.wantWindow)
			}
			if d.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", d.URL, tt.wantURL)
			}
		})
	}
}
