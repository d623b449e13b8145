package interfaces

import "errors"

// Common interface errors shared across components. The REST client maps
// backend status codes onto these; the room controller branches on them.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
	ErrForbidden       = errors.New("access to session denied")
)
