package chatsync

import "sync"

// MessageStore keeps per-conversation message lists. Lists are
// append-only for new arrivals and deduplicated by message id, which is
// what makes duplicate or reordered push delivery safe to replay.
type MessageStore struct {
	mu     sync.RWMutex
	byConv map[string][]Message
	selfID string
}

func NewMessageStore(selfUserID string) *MessageStore {
	return &MessageStore{
		byConv: map[string][]Message{},
		selfID: selfUserID,
	}
}

// Add appends the message to its conversation's list. Returns false
// without changing state when a message with the same id is already
// present.
func (s *MessageStore) Add(conversationID string, msg Message) bool {
	if conversationID == "" || msg.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byConv[conversationID]
	if indexOfMessage(list, msg.ID) >= 0 {
		return false
	}
	msg.ConversationID = conversationID
	s.byConv[conversationID] = append(list, msg)
	return true
}

// Prepend inserts older messages ahead of the current list, keeping
// their given order and skipping ids already present. Used for backward
// pagination. Returns how many messages were actually inserted.
func (s *MessageStore) Prepend(conversationID string, msgs []Message) int {
	if conversationID == "" || len(msgs) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byConv[conversationID]
	fresh := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.ID == "" || indexOfMessage(list, msg.ID) >= 0 || indexOfMessage(fresh, msg.ID) >= 0 {
			continue
		}
		msg.ConversationID = conversationID
		fresh = append(fresh, msg)
	}
	if len(fresh) == 0 {
		return 0
	}
	s.byConv[conversationID] = append(fresh, list...)
	return len(fresh)
}

// Update replaces the entry with the matching id in place. Returns false
// if the message is unknown.
func (s *MessageStore) Update(conversationID string, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byConv[conversationID]
	i := indexOfMessage(list, msg.ID)
	if i < 0 {
		return false
	}
	msg.ConversationID = conversationID
	list[i] = msg
	return true
}

// Delete soft-deletes the message: content and attachments are cleared
// but the entry keeps its position so replies pointing at it stay valid.
func (s *MessageStore) Delete(conversationID, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byConv[conversationID]
	i := indexOfMessage(list, messageID)
	if i < 0 {
		return false
	}
	list[i].IsDeleted = true
	list[i].Content = ""
	list[i].Images = nil
	return true
}

// MarkAllRead flags every message in the conversation as read and
// returns how many transitioned. Applied for read receipts and when the
// local user opens the conversation.
func (s *MessageStore) MarkAllRead(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byConv[conversationID]
	changed := 0
	for i := range list {
		if !list[i].IsRead {
			list[i].IsRead = true
			changed++
		}
	}
	return changed
}

// Messages returns a copy of the conversation's list in insertion order.
func (s *MessageStore) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.byConv[conversationID]...)
}

func (s *MessageStore) Get(conversationID, messageID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byConv[conversationID]
	if i := indexOfMessage(list, messageID); i >= 0 {
		return list[i], true
	}
	return Message{}, false
}

func (s *MessageStore) Reset() {
	s.mu.Lock()
	s.byConv = map[string][]Message{}
	s.mu.Unlock()
}

func indexOfMessage(list []Message, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
