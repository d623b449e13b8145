package translate

import "errors"

var (
	ErrEmptyText        = errors.New("text to translate is empty")
	ErrUnexpectedStatus = errors.New("unexpected translation service status")
)
