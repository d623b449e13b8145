package chat

import (
	"roomsync/pkg/types"
)

// Entry is one rendered message with its header visibility resolved.
// The avatar/name header collapses for consecutive messages from the same
// sender within a date group; system messages always break the run.
type Entry struct {
	Message    *types.SessionMessage
	ShowHeader bool
}

// Group is one calendar-date section of the chat pane.
type Group struct {
	Label   string
	Entries []Entry
}

// Groups partitions the log by the local calendar date of created_at, with
// the boundary at midnight local time. Groups appear in first-message
// order and preserve arrival order within each group. Labels are "Today",
// "Yesterday", or a literal date string.
func (s *Store) Groups() []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	var groups []Group
	index := make(map[string]int)

	for _, msg := range s.messages {
		key := msg.CreatedAt.Local().Format("2006-01-02")
		i, exists := index[key]
		if !exists {
			label := msg.CreatedAt.Local().Format("January 2, 2006")
			switch key {
			case today:
				label = "Today"
			case yesterday:
				label = "Yesterday"
			}
			groups = append(groups, Group{Label: label})
			i = len(groups) - 1
			index[key] = i
		}

		group := &groups[i]
		c := *msg
		group.Entries = append(group.Entries, Entry{
			Message:    &c,
			ShowHeader: showHeader(group.Entries, &c),
		})
	}

	return groups
}

// showHeader decides whether a message starts a new sender run within its
// date group.
func showHeader(prior []Entry, msg *types.SessionMessage) bool {
	if msg.Type == types.MessageTypeSystem {
		return true
	}
	if len(prior) == 0 {
		return true
	}
	prev := prior[len(prior)-1].Message
	if prev.Type == types.MessageTypeSystem {
		return true
	}
	return prev.UserID != msg.UserID
}
