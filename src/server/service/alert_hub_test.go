package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestClient(hub *Hub, id string, buffer int) *HubClient {
	c := &HubClient{ID: id, Hub: hub, Send: make(chan []byte, buffer)}
	c.touch()
	return c
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	client := newTestClient(hub, "a", 4)
	hub.Register(client)
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 1 })

	hub.Unregister(client)
	waitFor(t, "unregistration", func() bool { return hub.ClientCount() == 0 })

	if _, ok := <-client.Send; ok {
		t.Error("Send should be closed after unregister")
	}

	// a second unregister must not close Send twice
	hub.Unregister(client)
	time.Sleep(20 * time.Millisecond)
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	a := newTestClient(hub, "a", 4)
	b := newTestClient(hub, "b", 4)
	hub.Register(a)
	hub.Register(b)
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 2 })

	if err := hub.Broadcast("new_alert", json.RawMessage(`{"status":"firing"}`)); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	for _, c := range []*HubClient{a, b} {
		select {
		case msg := <-c.Send:
			if string(msg) != `{"type":"new_alert","data":{"status":"firing"}}` {
				t.Errorf("client %s got %s", c.ID, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s: timeout waiting for broadcast", c.ID)
		}
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	slow := newTestClient(hub, "slow", 1)
	fast := newTestClient(hub, "fast", 8)
	hub.Register(slow)
	hub.Register(fast)
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 2 })

	hub.Broadcast("new_alert", 1)
	hub.Broadcast("new_alert", 2)

	waitFor(t, "slow client removal", func() bool { return hub.ClientCount() == 1 })

	if len(fast.Send) != 2 {
		t.Errorf("fast client queued %d messages, want 2", len(fast.Send))
	}
}

func TestHub_CleanupStaleConnections(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	stale := newTestClient(hub, "stale", 1)
	stale.lastSeen.Store(time.Now().Add(-10 * time.Minute).UnixNano())
	live := newTestClient(hub, "live", 1)
	hub.Register(stale)
	hub.Register(live)
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 2 })

	if n := hub.cleanupStaleConnections(time.Now()); n != 1 {
		t.Errorf("cleanupStaleConnections() = %d, want 1", n)
	}
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	client := newTestClient(hub, "a", 1)
	hub.Register(client)
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 1 })

	hub.Stop()
	hub.Stop()

	if _, ok := <-client.Send; ok {
		t.Error("Send should be closed after Stop")
	}
	if err := hub.Broadcast("new_alert", nil); err != nil {
		t.Errorf("Broadcast after Stop error = %v", err)
	}
}

func TestHub_WebSocketDelivery(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewHubClient(hub, conn)
		hub.Register(client)
		go client.WritePump()
		client.ReadPump()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	waitFor(t, "websocket registration", func() bool { return hub.ClientCount() == 1 })

	hub.Broadcast("new_alert", map[string]string{"status": "firing"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg HubMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != "new_alert" {
		t.Errorf("message type = %q, want new_alert", msg.Type)
	}

	conn.Close()
	waitFor(t, "websocket unregistration", func() bool { return hub.ClientCount() == 0 })
}
