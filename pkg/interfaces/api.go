package interfaces

import (
	"context"

	"roomsync/pkg/types"
)

// SessionAPI is the collaborator REST surface the engine consumes. A single
// interface for all backend calls keeps the room controller and persistence
// bridge testable with mocks and the HTTP client swappable.
type SessionAPI interface {
	// GetParticipants returns the current participant list for a session.
	GetParticipants(ctx context.Context, sessionID string) ([]*types.Participant, error)

	// GetMessages returns the historical message log for a session. A
	// Forbidden result is tolerated by callers: the room degrades to an
	// empty chat and relies on live delivery.
	GetMessages(ctx context.Context, sessionID string) ([]*types.SessionMessage, error)

	// JoinSession creates a participant record for the current user.
	// Returns ErrSessionEnded for ended sessions and ErrSessionNotFound
	// for unknown ones.
	JoinSession(ctx context.Context, sessionID string) (*types.Participant, error)

	// LeaveSession flips the caller's presence flag off.
	LeaveSession(ctx context.Context, sessionID string) error

	// EndSession transitions the session to ended. Creator only.
	EndSession(ctx context.Context, sessionID string) error

	// GetCanvasOperations returns the ordered operation log at or after the
	// given sequence, for rehydration of a reloading or late-joining client.
	GetCanvasOperations(ctx context.Context, sessionID string, since int64) ([]*types.CanvasOperation, error)

	// PostCanvasOperation persists one operation to the backend log.
	PostCanvasOperation(ctx context.Context, sessionID string, op *types.CanvasOperation) error

	// PostMessage is the REST fallback send used when no live channel is
	// available. Returns the stored message including its server-side id.
	PostMessage(ctx context.Context, sessionID, content, messageType string) (*types.SessionMessage, error)
}
