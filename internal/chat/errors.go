package chat

import "errors"

var (
	ErrEmptyDraft = errors.New("draft is empty")
	ErrNoSendPath = errors.New("no send path available")
)
