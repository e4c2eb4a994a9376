package chatsync

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildAlertUsesSenderName(t *testing.T) {
	alert := buildAlert("Ada", "hello", "c1", 0)
	if alert.Title != "Ada" || alert.Body != "hello" || alert.ConversationID != "c1" {
		t.Fatalf("unexpected alert: %+v", alert)
	}
}

func TestBuildAlertFallsBackWhenSenderNameMissing(t *testing.T) {
	for _, name := range []string{"", "   "} {
		alert := buildAlert(name, "hello", "c1", 0)
		if alert.Title != "Someone" {
			t.Fatalf("expected fallback title for %q, got %q", name, alert.Title)
		}
	}
}

func TestBuildAlertTruncatesLongBodies(t *testing.T) {
	body := strings.Repeat("é", 200)
	alert := buildAlert("Ada", body, "c1", 0)
	if !strings.HasSuffix(alert.Body, "…") {
		t.Fatalf("expected ellipsis marker, got %q", alert.Body)
	}
	if got := utf8.RuneCountInString(alert.Body); got != defaultAlertBodyLimit+1 {
		t.Fatalf("expected %d runes incl. marker, got %d", defaultAlertBodyLimit+1, got)
	}

	short := buildAlert("Ada", "short", "c1", 0)
	if short.Body != "short" {
		t.Fatalf("expected short body untouched, got %q", short.Body)
	}
}

func TestBuildAlertHonorsCustomLimit(t *testing.T) {
	alert := buildAlert("Ada", "abcdefgh", "c1", 4)
	if alert.Body != "abcd…" {
		t.Fatalf("expected 4-rune truncation, got %q", alert.Body)
	}
}
