package pushws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/pulsechat/pulse-go/internal/chatsync"
)

func TestLoopbackDeliversToSubscribers(t *testing.T) {
	loopback := NewLoopback()
	received := make(chan chatsync.Envelope, 1)
	sub, err := loopback.Subscribe(context.Background(), func(env chatsync.Envelope) {
		received <- env
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	loopback.Publish(chatsync.Envelope{Event: chatsync.EventUserOnline, Payload: json.RawMessage(`{"userId":"u1"}`)})
	select {
	case env := <-received:
		if env.Event != chatsync.EventUserOnline {
			t.Fatalf("unexpected event %q", env.Event)
		}
	default:
		t.Fatalf("expected synchronous delivery")
	}
}

func TestLoopbackUnsubscribeStopsDelivery(t *testing.T) {
	loopback := NewLoopback()
	var count int
	sub, err := loopback.Subscribe(context.Background(), func(chatsync.Envelope) { count++ })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if loopback.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", loopback.SubscriberCount())
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("repeat unsubscribe failed: %v", err)
	}
	if loopback.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", loopback.SubscriberCount())
	}
	loopback.Publish(chatsync.Envelope{Event: chatsync.EventUserOnline})
	if count != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", count)
	}
	select {
	case <-sub.Done():
	default:
		t.Fatalf("expected Done closed after unsubscribe")
	}
}

func TestLoopbackContextCancelReleasesSubscription(t *testing.T) {
	loopback := NewLoopback()
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := loopback.Subscribe(ctx, func(chatsync.Envelope) {}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for loopback.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected cancellation to release the subscription")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSocketDeliversValidFramesAndDropsMalformed(t *testing.T) {
	frames := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"event":"","payload":{}}`),
		[]byte(`{"event":"user-online","payload":{"userId":"u1"}}`),
	}
	gotAuth := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept failed: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for _, frame := range frames {
			if err := conn.Write(r.Context(), websocket.MessageText, frame); err != nil {
				t.Errorf("write failed: %v", err)
				return
			}
		}
		// Hold the connection open until the client closes it.
		_, _, _ = conn.Read(r.Context())
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	received := make(chan chatsync.Envelope, len(frames))
	socket := NewSocket(wsURL, "secret", nil)
	sub, err := socket.Subscribe(context.Background(), func(env chatsync.Envelope) {
		received <- env
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	if auth := <-gotAuth; auth != "Bearer secret" {
		t.Fatalf("expected bearer header on dial, got %q", auth)
	}
	select {
	case env := <-received:
		if env.Event != chatsync.EventUserOnline {
			t.Fatalf("unexpected event %q", env.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the valid frame")
	}
	select {
	case env := <-received:
		t.Fatalf("expected malformed frames dropped, got %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSocketUnsubscribeStopsReader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		_, _, _ = conn.Read(r.Context())
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	socket := NewSocket(wsURL, "", nil)
	sub, err := socket.Subscribe(context.Background(), func(chatsync.Envelope) {})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = sub.Unsubscribe()
		_ = sub.Unsubscribe() // repeat must not block or panic
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("unsubscribe did not return")
	}
}

func TestSocketDoneFiresWhenServerCloses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(websocket.StatusGoingAway, "server shutdown")
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	socket := NewSocket(wsURL, "", nil)
	sub, err := socket.Subscribe(context.Background(), func(chatsync.Envelope) {})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Done to fire when the server closes the connection")
	}
}

func TestSocketDialFailureReturnsError(t *testing.T) {
	socket := NewSocket("ws://127.0.0.1:1/push", "", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := socket.Subscribe(ctx, func(chatsync.Envelope) {}); err == nil {
		t.Fatalf("expected dial error for unreachable endpoint")
	}
}
