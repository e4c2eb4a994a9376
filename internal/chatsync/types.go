package chatsync

import "time"

// Conversation is one entry in the recency-sorted conversation list. The
// engine owns only the denormalized preview fields; full message history
// lives in the MessageStore.
type Conversation struct {
	ID                  string    `json:"id"`
	ParticipantID       string    `json:"participantId"`
	ParticipantName     string    `json:"participantName,omitempty"`
	LastMessagePreview  string    `json:"lastMessagePreview,omitempty"`
	LastMessageSenderID string    `json:"lastMessageSenderId,omitempty"`
	UnreadCount         int       `json:"unreadCount"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// ConversationPatch carries a partial update; nil fields are left alone.
type ConversationPatch struct {
	ParticipantName     *string
	LastMessagePreview  *string
	LastMessageSenderID *string
	UnreadCount         *int
	UpdatedAt           *time.Time
}

// Reaction is an aggregated emoji tally embedded in a message. An entry
// exists only while its count is positive.
type Reaction struct {
	Emoji      string `json:"emoji"`
	Count      int    `json:"count"`
	HasReacted bool   `json:"hasReacted"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	SenderName     string     `json:"senderName,omitempty"`
	Content        string     `json:"content"`
	IsRead         bool       `json:"isRead"`
	IsDeleted      bool       `json:"isDeleted"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
	ReplyTo        string     `json:"replyTo,omitempty"`
	Reactions      []Reaction `json:"reactions,omitempty"`
	Images         []string   `json:"images,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type Notification struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	IsRead    bool              `json:"isRead"`
	Data      map[string]string `json:"data,omitempty"`
	ActorID   string            `json:"actorId,omitempty"`
	ActorName string            `json:"actorName,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

type NotificationFeed struct {
	Items      []Notification `json:"items"`
	NextCursor *string        `json:"nextCursor"`
}

type MessageFeed struct {
	Items      []Message `json:"items"`
	NextCursor *string   `json:"nextCursor"`
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}
