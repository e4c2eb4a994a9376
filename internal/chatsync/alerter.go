package chatsync

import "strings"

const (
	defaultAlertBodyLimit = 120
	fallbackSenderName    = "Someone"
)

// Alert is what the desktop/browser notification collaborator displays.
// Clicking it is expected to focus the window and open the conversation;
// that behavior lives with the implementation, outside the engine.
type Alert struct {
	Title          string
	Body           string
	ConversationID string
}

// Alerter displays alerts for messages that arrive while the window is
// not focused. Implementations must tolerate being called from the
// event-dispatch goroutine.
type Alerter interface {
	Notify(alert Alert)
}

type NopAlerter struct{}

func (NopAlerter) Notify(Alert) {}

func buildAlert(senderName, body, conversationID string, bodyLimit int) Alert {
	title := strings.TrimSpace(senderName)
	if title == "" {
		title = fallbackSenderName
	}
	if bodyLimit <= 0 {
		bodyLimit = defaultAlertBodyLimit
	}
	if runes := []rune(body); len(runes) > bodyLimit {
		body = string(runes[:bodyLimit]) + "…"
	}
	return Alert{
		Title:          title,
		Body:           body,
		ConversationID: conversationID,
	}
}
