package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRegisterAndCancel(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	id, ch, cancel := hub.Register()
	if id == "" {
		t.Fatal("Register returned empty id")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", hub.ClientCount())
	}

	cancel()
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after cancel, want 0", hub.ClientCount())
	}

	// The receive channel closes on deregistration.
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received a message from a cancelled client")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after cancel")
	}

	// Double cancel is safe.
	cancel()
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	_, ch1, cancel1 := hub.Register()
	defer cancel1()
	_, ch2, cancel2 := hub.Register()
	defer cancel2()

	hub.Broadcast(Message{Type: TypeVersionActivated, Version: "v2"})

	for i, ch := range []<-chan Message{ch1, ch2} {
		select {
		case msg := <-ch:
			if msg.Type != TypeVersionActivated || msg.Version != "v2" {
				t.Errorf("client %d received %+v", i, msg)
			}
		case <-time.After(time.Second):
			t.Errorf("client %d received nothing", i)
		}
	}
}

func TestBroadcastDropsForSlowClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	_, ch, cancel := hub.Register()
	defer cancel()

	// Fill the buffer without reading, then overflow it.
	for i := 0; i < clientBuffer+5; i++ {
		hub.Broadcast(Message{Type: TypePush})
	}

	received := 0
drain:
	for {
		select {
		case <-ch:
			received++
		default:
			break drain
		}
	}

	if received != clientBuffer {
		t.Errorf("received %d messages, want buffer size %d with the rest dropped", received, clientBuffer)
	}
}

func TestNotifierMethods(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	_, ch, cancel := hub.Register()
	defer cancel()

	hub.SyncSuccess("m1", "/api/guests")
	hub.SyncFailed("m2")
	hub.SyncDeadLetter("m3", "/api/tasks")

	want := []Message{
		{Type: TypeSyncSuccess, ID: "m1", URL: "/api/guests"},
		{Type: TypeSyncFailed, ID: "m2"},
		{Type: TypeSyncDeadLetter, ID: "m3", URL: "/api/tasks"},
	}

	for _, w := range want {
		select {
		case msg := <-ch:
			if msg.Type != w.Type || msg.ID != w.ID || msg.URL != w.URL {
				t.Errorf("received %+v, want %+v", msg, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("no message received, want %+v", w)
		}
	}
}

func TestServeSSEStreamsMessages(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(hub.ServeSSE))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect to stream: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}

	// Wait for the subscription before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast(Message{Type: TypeSyncSuccess, ID: "m1", URL: "/api/guests"})

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &msg); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		if msg.Type != TypeSyncSuccess || msg.ID != "m1" {
			t.Errorf("event = %+v", msg)
		}
		break
	}

	cancel()

	// The handler returns once the client is gone.
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never deregistered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCommandDecoding(t *testing.T) {
	var cmd Command
	if err := json.Unmarshal([]byte(`{"type":"CACHE_URLS","urls":["/guests","/budget"]}`), &cmd); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if cmd.Type != CmdCacheURLs {
		t.Errorf("Type = %q, want %q", cmd.Type, CmdCacheURLs)
	}
	if len(cmd.URLs) != 2 || cmd.URLs[0] != "/guests" {
		t.Errorf("URLs = %v", cmd.URLs)
	}
}
