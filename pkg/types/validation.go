package types

import (
	"regexp"
	"strings"
)

// Regex compiled once at package initialization; canvas operations validate
// on every broadcast so this is on the hot path.
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks if a user ID meets format requirements.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// Validate ensures a canvas operation is well formed before it is journaled
// or broadcast. Validation at type level keeps the rules identical across
// the connection manager and the persistence bridge.
func (op *CanvasOperation) Validate() error {
	if op.SessionID == "" {
		return ErrInvalidSessionID
	}
	if !IsValidUserID(op.UserID) {
		return ErrInvalidUserID
	}

	switch op.Type {
	case OperationTypeTextUpdate:
		if op.Action != ActionCreateOrUpdate {
			return ErrInvalidAction
		}
		if op.Element == nil {
			return ErrMissingElement
		}
		if op.Element.ID == "" {
			return ErrInvalidElementID
		}
	case OperationTypeClear:
		if op.Action != ActionClearAll {
			return ErrInvalidAction
		}
	default:
		return ErrInvalidOperation
	}

	return nil
}

// Validate ensures a session message can be sent. The only input validation
// the room performs is non-empty plus a length cap; everything else is the
// backend's concern.
func (m *SessionMessage) Validate() error {
	if m.SessionID == "" {
		return ErrInvalidSessionID
	}
	if m.Type != MessageTypeText && m.Type != MessageTypeSystem {
		return ErrInvalidMessageType
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	if len(m.Content) > 2000 {
		return ErrContentTooLarge
	}
	return nil
}
