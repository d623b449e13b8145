package whiteboard

import "errors"

var (
	ErrElementNotFound = errors.New("element not found")
	ErrNotEditing      = errors.New("element is not being edited")
)
