package types

import "errors"

// Specific error types enable proper error handling and user-facing
// messages throughout the engine.
var (
	ErrInvalidUserID      = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidSessionID   = errors.New("session ID cannot be empty")
	ErrInvalidElementID   = errors.New("element ID cannot be empty")
	ErrInvalidOperation   = errors.New("invalid canvas operation type")
	ErrInvalidAction      = errors.New("invalid canvas operation action")
	ErrMissingElement     = errors.New("text_update operation requires an element")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrContentTooLarge    = errors.New("message content exceeds 2000 character limit")
)
