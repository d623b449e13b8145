package interfaces

import (
	"context"

	"roomsync/pkg/types"
)

// OperationJournal is the local outbox backing the persistence bridge.
// Entries are appended before the REST write is attempted and deleted only
// on acknowledgment, so unconfirmed operations survive a process restart.
type OperationJournal interface {
	// AppendOperation journals a canvas operation for later delivery.
	AppendOperation(ctx context.Context, op *types.CanvasOperation) (*types.OutboxEntry, error)

	// AppendMessage journals a chat message for later delivery.
	AppendMessage(ctx context.Context, msg *types.SessionMessage) (*types.OutboxEntry, error)

	// Pending returns up to limit undelivered entries in enqueue order.
	Pending(ctx context.Context, limit int) ([]*types.OutboxEntry, error)

	// MarkAttempt increments the delivery attempt counter for an entry.
	MarkAttempt(ctx context.Context, entryID string) error

	// Delete removes an acknowledged entry.
	Delete(ctx context.Context, entryID string) error

	// Close releases the journal's resources.
	Close() error
}
