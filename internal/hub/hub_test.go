package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_Publish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return h.Stats().Joined == 1 })

	h.Publish("armed", map[string]int{"total_entries": 10})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var ev struct {
		Type    string         `json:"type"`
		Payload map[string]int `json:"payload"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.Type != "armed" || ev.Payload["total_entries"] != 10 {
		t.Errorf("Unexpected event %s", msg)
	}

	waitFor(t, func() bool { return h.Stats().Sent == 1 })
}

func TestHub_PublishWithoutClients(t *testing.T) {
	h := New()
	// Nobody drains the broadcast queue, so it fills and then drops.
	for i := 0; i < cap(h.broadcast)+5; i++ {
		h.Publish("ledger", nil)
	}
	if got := h.Stats().Dropped; got != 5 {
		t.Errorf("Expected 5 dropped events, but got %d", got)
	}
}

func TestHub_ServeAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New()
	go h.Run(ctx)
	cancel()
	<-h.done

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Errorf("Expected the connection to be closed by a stopped hub")
	}
}
