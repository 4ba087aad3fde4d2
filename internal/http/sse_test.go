package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEventHub_SubscribeAndBroadcast(t *testing.T) {
	hub := NewEventHub()
	defer hub.Close()

	ch := hub.Subscribe()
	if got := hub.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", got)
	}

	hub.Broadcast(Event{Type: "kpis", Sheet: "Main"})

	select {
	case ev := <-ch:
		if ev.Type != "kpis" || ev.Sheet != "Main" {
			t.Errorf("received event = %+v, want type kpis sheet Main", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive broadcast")
	}
}

func TestEventHub_SlowSubscriberDropsEvents(t *testing.T) {
	hub := NewEventHub()
	defer hub.Close()

	ch := hub.Subscribe()

	// Nobody drains the channel, so only the buffer's worth of events
	// can be delivered.
	for i := 0; i < 50; i++ {
		hub.Broadcast(Event{Type: "kpis", Sheet: "Main"})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}

	if received != cap(ch) {
		t.Errorf("received %d events, want buffer size %d", received, cap(ch))
	}
}

func TestEventHub_Unsubscribe(t *testing.T) {
	hub := NewEventHub()
	defer hub.Close()

	ch := hub.Subscribe()
	hub.Unsubscribe(ch)

	if got := hub.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() after Unsubscribe = %d, want 0", got)
	}
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}

	// Unsubscribing twice must not panic.
	hub.Unsubscribe(ch)
}

func TestEventHub_Close(t *testing.T) {
	hub := NewEventHub()

	ch := hub.Subscribe()
	hub.Close()

	if _, ok := <-ch; ok {
		t.Error("channel still open after Close")
	}

	// Broadcasts after Close are no-ops.
	hub.Broadcast(Event{Type: "kpis", Sheet: "Main"})

	late := hub.Subscribe()
	if _, ok := <-late; ok {
		t.Error("Subscribe on closed hub returned an open channel")
	}

	// Closing twice must not panic.
	hub.Close()
}

func TestHandleEvents_StreamsBroadcasts(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.handleEvents(rec, req)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed to the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.hub.Broadcast(Event{Type: "kpis", Sheet: "Main"})
	// Closing the hub delivers the buffered event and then ends the
	// handler, so the recorder is safe to inspect afterwards.
	srv.hub.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after hub close")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, ": connected") {
		t.Errorf("stream missing connection comment: %q", body)
	}
	if !strings.Contains(body, `data: {"type":"kpis"`) {
		t.Errorf("stream missing broadcast event: %q", body)
	}
}

func TestHandleEvents_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/events")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/events status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
