package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialFeed(t *testing.T, hub *Hub, eventID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleEventFeed(w, r, eventID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForWatchers(t *testing.T, hub *Hub, eventID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Watchers(eventID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("watchers(%s) = %d, want %d", eventID, hub.Watchers(eventID), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubRegistersAndUnregistersWatchers(t *testing.T) {
	hub := NewHub(nil)

	first := dialFeed(t, hub, "E1")
	second := dialFeed(t, hub, "E1")
	other := dialFeed(t, hub, "E2")
	defer other.Close()

	waitForWatchers(t, hub, "E1", 2)
	waitForWatchers(t, hub, "E2", 1)

	first.Close()
	waitForWatchers(t, hub, "E1", 1)
	second.Close()
	waitForWatchers(t, hub, "E1", 0)

	if hub.Watchers("E2") != 1 {
		t.Errorf("closing E1 watchers touched E2: %d", hub.Watchers("E2"))
	}
}

func TestHubBroadcastReachesOnlyEventWatchers(t *testing.T) {
	hub := NewHub(nil)

	watcher := dialFeed(t, hub, "E1")
	defer watcher.Close()
	bystander := dialFeed(t, hub, "E2")
	defer bystander.Close()
	waitForWatchers(t, hub, "E1", 1)
	waitForWatchers(t, hub, "E2", 1)

	payload := `{"event_id":"E1","action":"time_in"}`
	hub.broadcast("E1", []byte(payload))

	watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := watcher.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != payload {
		t.Errorf("got %s, want %s", data, payload)
	}

	bystander.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, _, err := bystander.ReadMessage(); err == nil {
		t.Error("E2 watcher received an E1 update")
	}
}
