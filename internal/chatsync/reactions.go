package chatsync

// AddReaction increments the emoji tally on the target message, creating
// the entry at count 1 if absent. HasReacted tracks whether the local
// session user is among the reactors, so a remote user's reaction never
// renders as the viewer's own.
func (s *MessageStore) AddReaction(conversationID, messageID, emoji, userID string) bool {
	if emoji == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byConv[conversationID]
	i := indexOfMessage(list, messageID)
	if i < 0 {
		return false
	}
	mine := userID == s.selfID
	for j := range list[i].Reactions {
		if list[i].Reactions[j].Emoji == emoji {
			list[i].Reactions[j].Count++
			if mine {
				list[i].Reactions[j].HasReacted = true
			}
			return true
		}
	}
	list[i].Reactions = append(list[i].Reactions, Reaction{
		Emoji:      emoji,
		Count:      1,
		HasReacted: mine,
	})
	return true
}

// RemoveReaction decrements the emoji tally. The entry is removed from
// the array the moment its count would reach zero; a zero-count
// placeholder is never retained.
func (s *MessageStore) RemoveReaction(conversationID, messageID, emoji, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byConv[conversationID]
	i := indexOfMessage(list, messageID)
	if i < 0 {
		return false
	}
	reactions := list[i].Reactions
	for j := range reactions {
		if reactions[j].Emoji != emoji {
			continue
		}
		reactions[j].Count--
		if reactions[j].Count <= 0 {
			list[i].Reactions = append(reactions[:j], reactions[j+1:]...)
			return true
		}
		if userID == s.selfID {
			reactions[j].HasReacted = false
		}
		return true
	}
	return false
}
