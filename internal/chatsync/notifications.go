package chatsync

import "sync"

// NotificationStore holds the deduplicated notification list, newest
// first, plus its own unread count. Suppression of notifications for the
// active conversation is decided by the orchestrator before Insert is
// ever called.
type NotificationStore struct {
	mu     sync.RWMutex
	items  []Notification
	unread int
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

// Insert prepends a push-delivered notification, incrementing the unread
// count unless it arrived already read. Returns false for duplicates.
func (s *NotificationStore) Insert(n Notification) bool {
	if n.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(n.ID) >= 0 {
		return false
	}
	s.items = append([]Notification{n}, s.items...)
	if !n.IsRead {
		s.unread++
	}
	return true
}

// MergeSnapshot folds an authoritative recent-notification page into the
// list without touching the unread count; the count is replaced
// separately by its own snapshot. Items are expected newest first.
// Returns how many were new.
func (s *NotificationStore) MergeSnapshot(items []Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, n := range items {
		if n.ID == "" || s.indexLocked(n.ID) >= 0 {
			continue
		}
		s.items = append(s.items, n)
		added++
	}
	return added
}

// MarkAsRead transitions one notification to read. No-op if the id is
// unknown or the notification is already read.
func (s *NotificationStore) MarkAsRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 || s.items[i].IsRead {
		return false
	}
	s.items[i].IsRead = true
	if s.unread > 0 {
		s.unread--
	}
	return true
}

// MarkAllAsRead flags every entry read and zeroes the unread count.
// Returns how many transitioned.
func (s *NotificationStore) MarkAllAsRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for i := range s.items {
		if !s.items[i].IsRead {
			s.items[i].IsRead = true
			changed++
		}
	}
	s.unread = 0
	return changed
}

// Remove drops the notification from the list, decrementing the unread
// count only if the removed entry was unread.
func (s *NotificationStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	if !s.items[i].IsRead && s.unread > 0 {
		s.unread--
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

// SetUnread replaces the unread count from an authoritative snapshot.
func (s *NotificationStore) SetUnread(count int) {
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	s.unread = count
	s.mu.Unlock()
}

func (s *NotificationStore) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// List returns a copy of the notification list, newest first.
func (s *NotificationStore) List() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.items...)
}

func (s *NotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *NotificationStore) Reset() {
	s.mu.Lock()
	s.items = nil
	s.unread = 0
	s.mu.Unlock()
}

func (s *NotificationStore) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
