package interfaces

import "roomsync/pkg/types"

// Channel is the live duplex transport owned by the connection manager.
// Sends are thread-safe; implementations serialize writes through a single
// writer goroutine.
type Channel interface {
	// SendCanvasOperation broadcasts an operation to the other participants.
	SendCanvasOperation(op *types.CanvasOperation) error

	// SendSessionMessage sends a chat message over the live channel.
	SendSessionMessage(content string) error

	// IsOpen reports whether the channel is currently connected.
	IsOpen() bool

	// Reconnect resets the backoff schedule and dials again immediately.
	Reconnect()

	// Close tears the channel down and stops the reconnect loop.
	Close() error
}
