package chatsync

import (
	"sort"
	"sync"
)

// ConversationStore holds the conversation list, unique by id and sorted
// by updatedAt descending after every mutation. It also records which
// conversation the user is currently viewing; the unread counter and the
// notification store read that pointer but never move it.
type ConversationStore struct {
	mu     sync.RWMutex
	items  []Conversation
	active string
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{}
}

// Upsert inserts the conversation if its id is unknown and replaces the
// existing entry otherwise.
func (s *ConversationStore) Upsert(conv Conversation) {
	if conv.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(conv.ID); i >= 0 {
		s.items[i] = conv
	} else {
		s.items = append(s.items, conv)
	}
	s.sortLocked()
}

// UpsertIfAbsent inserts the conversation only when its id is unknown.
// An existing entry is left untouched, unread count included, so
// concurrent writers that already accumulated counts are never
// clobbered. Returns whether an insert happened.
func (s *ConversationStore) UpsertIfAbsent(conv Conversation) bool {
	if conv.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(conv.ID) >= 0 {
		return false
	}
	s.items = append(s.items, conv)
	s.sortLocked()
	return true
}

// Patch merges the non-nil fields into the existing conversation and
// re-sorts the list. Returns false if the id is unknown.
func (s *ConversationStore) Patch(id string, patch ConversationPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	conv := s.items[i]
	if patch.ParticipantName != nil {
		conv.ParticipantName = *patch.ParticipantName
	}
	if patch.LastMessagePreview != nil {
		conv.LastMessagePreview = *patch.LastMessagePreview
	}
	if patch.LastMessageSenderID != nil {
		conv.LastMessageSenderID = *patch.LastMessageSenderID
	}
	if patch.UnreadCount != nil {
		conv.UnreadCount = *patch.UnreadCount
	}
	if patch.UpdatedAt != nil {
		conv.UpdatedAt = *patch.UpdatedAt
	}
	s.items[i] = conv
	s.sortLocked()
	return true
}

// SetActive records the conversation the user is viewing. An empty id
// means no conversation is open.
func (s *ConversationStore) SetActive(id string) {
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
}

func (s *ConversationStore) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *ConversationStore) Get(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return Conversation{}, false
}

// List returns a copy of the conversation list, newest activity first.
func (s *ConversationStore) List() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Conversation(nil), s.items...)
}

func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Reset clears the list and the active pointer. Used on logout.
func (s *ConversationStore) Reset() {
	s.mu.Lock()
	s.items = nil
	s.active = ""
	s.mu.Unlock()
}

// bumpUnread increments a conversation's unread count by one. Returns
// false if the id is unknown.
func (s *ConversationStore) bumpUnread(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.items[i].UnreadCount++
	return true
}

// clearUnread zeroes a conversation's unread count and returns the prior
// value so the caller can apply the same delta to the global counter.
func (s *ConversationStore) clearUnread(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return 0
	}
	prior := s.items[i].UnreadCount
	s.items[i].UnreadCount = 0
	return prior
}

func (s *ConversationStore) unreadSum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, conv := range s.items {
		total += conv.UnreadCount
	}
	return total
}

func (s *ConversationStore) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *ConversationStore) sortLocked() {
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].UpdatedAt.After(s.items[j].UpdatedAt)
	})
}
