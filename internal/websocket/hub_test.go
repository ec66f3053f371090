package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/pii-sentinel/internal/activity"
	"go.uber.org/zap"
)

func startHub(t *testing.T, cfg *HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, user, pass string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if user != "" {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		req.SetBasicAuth(user, pass)
		header.Set("Authorization", req.Header.Get("Authorization"))
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetStats().ActiveConnections == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestHubBroadcastsActivity(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{BroadcastActivity: true, Username: "admin", Password: "s3cret"})
	conn := dial(t, hub, srv, "admin", "s3cret")

	entry := activity.NewEntry(activity.TypeSubstitution, "claude", "Claude: 1 items replaced", activity.Details{})
	if err := hub.Record(context.Background(), entry); err != nil {
		t.Fatal(err)
	}

	ev := readEvent(t, conn)
	if ev.Type != EventTypeActivity {
		t.Fatalf("event type = %s", ev.Type)
	}
	data, ok := ev.Data.(map[string]interface{})
	if !ok || data["message"] != "Claude: 1 items replaced" {
		t.Errorf("unexpected data %#v", ev.Data)
	}
}

func TestHubRejectsBadCredentials(t *testing.T) {
	_, srv := startHub(t, &HubConfig{Username: "admin", Password: "s3cret"})

	for name, pass := range map[string]string{"missing": "", "wrong": "nope"} {
		t.Run(name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
			if pass != "" {
				req.SetBasicAuth("admin", pass)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d", resp.StatusCode)
			}
		})
	}
}

func TestHubSubscriptionFilters(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{BroadcastActivity: true, BroadcastSystem: true})
	conn := dial(t, hub, srv, "", "")

	sub := ClientMessage{Type: "subscribe", Data: &SubscriptionRequest{Events: []EventType{EventTypeSystemStatus}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatal(err)
	}
	// The read loop handles messages in order, so the pong proves the
	// subscription is in place.
	if err := conn.WriteJSON(ClientMessage{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev.Type != EventTypePong {
		t.Fatalf("expected pong, got %s", ev.Type)
	}

	hub.Record(context.Background(), activity.NewEntry(activity.TypeWarning, "gemini", "ignored", activity.Details{}))
	hub.BroadcastStatus(SystemStatusEvent{Status: "ok"})

	if ev := readEvent(t, conn); ev.Type != EventTypeSystemStatus {
		t.Errorf("expected system status, got %s", ev.Type)
	}
}

func TestShouldSendToClient(t *testing.T) {
	entry := activity.Entry{Service: "claude", Type: activity.TypeWarning}
	ev := Event{Type: EventTypeActivity, Data: entry}

	tests := []struct {
		name string
		sub  *SubscriptionRequest
		want bool
	}{
		{"no subscription", nil, true},
		{"other type", &SubscriptionRequest{Events: []EventType{EventTypeSystemStatus}}, false},
		{"service match", &SubscriptionRequest{Events: []EventType{EventTypeActivity}, Filter: &EventFilter{Services: []string{"claude"}}}, true},
		{"service miss", &SubscriptionRequest{Events: []EventType{EventTypeActivity}, Filter: &EventFilter{Services: []string{"gemini"}}}, false},
		{"type miss", &SubscriptionRequest{Events: []EventType{EventTypeActivity}, Filter: &EventFilter{Types: []activity.Type{activity.TypeError}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{}
			c.setSubscription(tt.sub)
			if got := shouldSendToClient(c, ev); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDisabledEventsAreNotQueued(t *testing.T) {
	hub := NewHub(&HubConfig{}, zap.NewNop())
	if err := hub.Record(context.Background(), activity.Entry{}); err != nil {
		t.Fatal(err)
	}
	if len(hub.broadcast) != 0 {
		t.Errorf("disabled event was queued")
	}
}
