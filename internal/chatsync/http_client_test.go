package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHTTPClientRetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := atomic.AddInt32(&calls, 1)
		if call == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"code":"unavailable","message":"retry"}`))
			return
		}
		if r.URL.Path != "/v1/messages/unread-count" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":12}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token", server.Client())
	count, err := client.FetchUnreadMessageCount(context.Background())
	if err != nil {
		t.Fatalf("expected retry to recover from transient 503, got error: %v", err)
	}
	if count != 12 {
		t.Fatalf("expected count 12, got %d", count)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly 2 calls (1 retry), got %d", atomic.LoadInt32(&calls))
	}
}

func TestHTTPClientListNotificationsForwardsPaging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/notifications" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("cursor") != "n_10" {
			t.Fatalf("expected cursor query to be forwarded, got %q", r.URL.Query().Get("cursor"))
		}
		if r.URL.Query().Get("limit") != "25" {
			t.Fatalf("expected limit query to be forwarded, got %q", r.URL.Query().Get("limit"))
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token" {
			t.Fatalf("expected bearer token header, got %q", auth)
		}
		if r.Header.Get("X-Correlation-Id") == "" {
			t.Fatalf("expected correlation id header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"n_11","type":"follow","title":"t"}],"nextCursor":"n_11"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token", server.Client())
	feed, err := client.ListNotifications(context.Background(), "n_10", 25)
	if err != nil {
		t.Fatalf("list notifications failed: %v", err)
	}
	if len(feed.Items) != 1 || feed.Items[0].ID != "n_11" {
		t.Fatalf("unexpected feed items: %+v", feed.Items)
	}
	if feed.NextCursor == nil || *feed.NextCursor != "n_11" {
		t.Fatalf("expected nextCursor n_11, got %+v", feed.NextCursor)
	}
}

func TestHTTPClientGetOrCreateConversation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/conversations" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body failed: %v", err)
		}
		if body["participantId"] != "u2" {
			t.Fatalf("expected participantId u2, got %q", body["participantId"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c9","participantId":"u2","unreadCount":0}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token", server.Client())
	conv, err := client.GetOrCreateConversation(context.Background(), "u2")
	if err != nil {
		t.Fatalf("get-or-create failed: %v", err)
	}
	if conv.ID != "c9" || conv.ParticipantID != "u2" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
}

func TestHTTPClientMarkNotificationReadEscapesID(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// URL.Path is already decoded; EscapedPath keeps the wire form.
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token", server.Client())
	if err := client.MarkNotificationRead(context.Background(), "n/1"); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if gotPath != "/v1/notifications/n%2F1/read" {
		t.Fatalf("expected escaped id in path, got %q", gotPath)
	}
}

func TestHTTPClientSurfacesTypedErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":"forbidden","message":"not yours"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token", server.Client())
	err := client.MarkAllNotificationsRead(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusForbidden || httpErr.Code != "forbidden" {
		t.Fatalf("unexpected error detail: %+v", httpErr)
	}
}

func TestHTTPClientListMessagesBefore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/conversations/c1/messages" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("before") != "m5" {
			t.Fatalf("expected before query, got %q", r.URL.Query().Get("before"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"m3","conversationId":"c1","senderId":"u2","content":"a"},{"id":"m4","conversationId":"c1","senderId":"u2","content":"b"}],"nextCursor":null}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token", server.Client())
	feed, err := client.ListMessagesBefore(context.Background(), "c1", "m5", 50)
	if err != nil {
		t.Fatalf("list messages failed: %v", err)
	}
	if len(feed.Items) != 2 || feed.Items[0].ID != "m3" {
		t.Fatalf("unexpected message page: %+v", feed.Items)
	}
}
