package chatsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// EventType discriminates push-channel envelopes. The orchestrator's
// handler table is keyed by these values; an unknown tag is logged and
// dropped rather than treated as an error, since the channel may ship
// event types this client predates.
type EventType string

const (
	EventNewMessage      EventType = "new-message"
	EventMessagesRead    EventType = "messages-read"
	EventTypingStart     EventType = "typing-start"
	EventTypingStop      EventType = "typing-stop"
	EventUserOnline      EventType = "user-online"
	EventUserOffline     EventType = "user-offline"
	EventReactionAdded   EventType = "reaction-added"
	EventReactionRemoved EventType = "reaction-removed"
	EventMessageEdited   EventType = "message-edited"
	EventMessageDeleted  EventType = "message-deleted"
	EventNewNotification EventType = "new-notification"
)

// Envelope is one push-channel frame: a tag plus an opaque payload that
// the owning handler decodes.
type Envelope struct {
	Event   EventType       `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type NewMessagePayload struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
}

type MessagesReadPayload struct {
	ConversationID string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type PresencePayload struct {
	UserID string `json:"userId"`
}

type ReactionPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Emoji          string `json:"emoji"`
	UserID         string `json:"userId"`
}

type MessageDeletedPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type NotificationPayload struct {
	Notification Notification `json:"notification"`
}

const envelopeSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["event", "payload"],
	"properties": {
		"event": {"type": "string", "minLength": 1},
		"payload": {"type": "object"}
	}
}`

var envelopeValidator = mustCompileEnvelopeSchema()

func mustCompileEnvelopeSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("envelope.json", doc); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("envelope.json")
	if err != nil {
		panic(err)
	}
	return schema
}

// DecodeEnvelope parses and validates one raw push frame. Frames that
// are not well-formed envelopes are rejected here so handlers only ever
// see a tag plus an object payload.
func DecodeEnvelope(data []byte) (Envelope, error) {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return Envelope{}, fmt.Errorf("decode push frame: %w", err)
	}
	if err := envelopeValidator.Validate(instance); err != nil {
		return Envelope{}, fmt.Errorf("invalid push frame: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode push frame: %w", err)
	}
	return env, nil
}
