package chatsync

import (
	"sort"
	"sync"
)

// PresenceTracker holds the set of online users and, per conversation,
// the set of users currently composing. Both directions of every toggle
// are idempotent; re-delivered events cause no state change.
type PresenceTracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
	typing map[string]map[string]struct{}
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		online: map[string]struct{}{},
		typing: map[string]map[string]struct{}{},
	}
}

// SetOnline toggles a user's membership in the online set. Returns
// whether the set actually changed.
func (t *PresenceTracker) SetOnline(userID string, online bool) bool {
	if userID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, present := t.online[userID]
	if online == present {
		return false
	}
	if online {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
	return true
}

func (t *PresenceTracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

func (t *PresenceTracker) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	users := make([]string, 0, len(t.online))
	for id := range t.online {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// SetTyping adds or removes a user from a conversation's composing set.
// Returns whether the set actually changed.
func (t *PresenceTracker) SetTyping(conversationID, userID string, typing bool) bool {
	if conversationID == "" || userID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.typing[conversationID]
	_, present := set[userID]
	if typing == present {
		return false
	}
	if typing {
		if set == nil {
			set = map[string]struct{}{}
			t.typing[conversationID] = set
		}
		set[userID] = struct{}{}
		return true
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.typing, conversationID)
	}
	return true
}

func (t *PresenceTracker) TypingIn(conversationID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.typing[conversationID]
	if len(set) == 0 {
		return nil
	}
	users := make([]string, 0, len(set))
	for id := range set {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

func (t *PresenceTracker) Reset() {
	t.mu.Lock()
	t.online = map[string]struct{}{}
	t.typing = map[string]map[string]struct{}{}
	t.mu.Unlock()
}
