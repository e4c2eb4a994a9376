package chatsync

import "sync"

// UnreadCounter keeps the global unread message count consistent with
// the per-conversation counts by delta propagation: every increment or
// decrement applied to a conversation is applied to the global count by
// the same signed amount, never re-derived. A reconnect snapshot may
// replace the global value wholesale via SetGlobal.
type UnreadCounter struct {
	mu     sync.Mutex
	global int
	convs  *ConversationStore
	selfID string
}

func NewUnreadCounter(convs *ConversationStore, selfUserID string) *UnreadCounter {
	return &UnreadCounter{convs: convs, selfID: selfUserID}
}

// OnNewMessage applies the unread delta for an arriving message and
// reports whether the message was counted. Messages sent by the local
// user, messages for the conversation currently being viewed, and
// messages for unknown conversations never move either counter.
func (u *UnreadCounter) OnNewMessage(conversationID, senderID string) bool {
	if senderID == u.selfID {
		return false
	}
	if u.convs.Active() == conversationID {
		return false
	}
	if !u.convs.bumpUnread(conversationID) {
		return false
	}
	u.mu.Lock()
	u.global++
	u.mu.Unlock()
	return true
}

// MarkConversationRead zeroes the conversation's unread count and
// decrements the global count by exactly the amount that was cleared.
// Returns the cleared amount.
func (u *UnreadCounter) MarkConversationRead(conversationID string) int {
	cleared := u.convs.clearUnread(conversationID)
	if cleared == 0 {
		return 0
	}
	u.mu.Lock()
	u.global -= cleared
	u.mu.Unlock()
	return cleared
}

// SetGlobal replaces the global count from an authoritative snapshot.
func (u *UnreadCounter) SetGlobal(count int) {
	if count < 0 {
		count = 0
	}
	u.mu.Lock()
	u.global = count
	u.mu.Unlock()
}

func (u *UnreadCounter) Global() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.global
}

func (u *UnreadCounter) Reset() {
	u.mu.Lock()
	u.global = 0
	u.mu.Unlock()
}
