package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"roomsync/pkg/types"
)

// Sender pushes a chat message over the live channel.
type Sender func(content string) error

// Fallback is the REST send used when no live channel is wired or the
// channel send fails.
type Fallback func(ctx context.Context, content, messageType string) (*types.SessionMessage, error)

// Store is the append-only ordered log of session messages, merged from
// REST history on join and live WebSocket deliveries afterwards. Messages
// are deduplicated by id so a redelivered frame never double-appends.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	userID    string
	messages  []*types.SessionMessage
	seen      map[string]bool
	draft     string

	send     Sender
	fallback Fallback
	now      func() time.Time
}

// NewStore creates a chat store for one session. Either sink may be nil:
// with no live sender every send goes through the REST fallback, and with
// no fallback a failed live send surfaces to the caller.
func NewStore(sessionID, userID string, send Sender, fallback Fallback) *Store {
	return &Store{
		sessionID: sessionID,
		userID:    userID,
		seen:      make(map[string]bool),
		send:      send,
		fallback:  fallback,
		now:       time.Now,
	}
}

// Append adds one live message to the log. Returns false when the message
// id was already seen; redelivery is a no-op.
func (s *Store) Append(msg *types.SessionMessage) bool {
	if msg == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.append(msg)
}

// LoadHistory merges the REST message history into the log. History loads
// before the socket delivers live updates, but any frame that raced ahead
// is kept and deduplicated by id.
func (s *Store) LoadHistory(history []*types.SessionMessage) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, msg := range history {
		if s.append(msg) {
			added++
		}
	}
	return added
}

// append assumes the lock is held.
func (s *Store) append(msg *types.SessionMessage) bool {
	if msg.ID != "" && s.seen[msg.ID] {
		return false
	}
	if msg.ID != "" {
		s.seen[msg.ID] = true
	}
	c := *msg
	s.messages = append(s.messages, &c)
	return true
}

// Messages returns the full log in arrival order.
func (s *Store) Messages() []*types.SessionMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.SessionMessage, len(s.messages))
	for i, msg := range s.messages {
		c := *msg
		out[i] = &c
	}
	return out
}

// Len returns the number of messages in the log.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// SetDraft stores the current input text.
func (s *Store) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// Draft returns the current input text.
func (s *Store) Draft() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft
}

// Send delivers the current draft. The input is cleared optimistically
// before confirmation; on failure the original text is restored into the
// draft, never appended to the message list — the send path is not
// optimistic-append, only optimistic-clear. The live channel is preferred
// with REST as fallback.
func (s *Store) Send(ctx context.Context) error {
	s.mu.Lock()
	content := s.draft
	if strings.TrimSpace(content) == "" {
		s.mu.Unlock()
		return ErrEmptyDraft
	}
	s.draft = ""
	s.mu.Unlock()

	err := s.deliver(ctx, content)
	if err != nil {
		s.mu.Lock()
		s.draft = content
		s.mu.Unlock()
	}
	return err
}

func (s *Store) deliver(ctx context.Context, content string) error {
	if s.send != nil {
		if err := s.send(content); err == nil {
			return nil
		} else if s.fallback == nil {
			return err
		}
	}
	if s.fallback == nil {
		return ErrNoSendPath
	}

	msg, err := s.fallback(ctx, content, types.MessageTypeText)
	if err != nil {
		return err
	}
	// The REST path returns the stored record directly instead of echoing
	// it through the socket, so append it here.
	if msg != nil {
		s.Append(msg)
	}
	return nil
}
