package types

import (
	"encoding/json"
	"time"
)

// Outbox entry kinds. The journal stores both record shapes in one table so
// drain order matches enqueue order across kinds.
const (
	OutboxKindCanvasOperation = "canvas_operation"
	OutboxKindSessionMessage  = "session_message"
)

// OutboxEntry is one pending persistence write. Entries survive restarts in
// the local journal until the backend acknowledges them.
type OutboxEntry struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	SessionID  string          `json:"session_id"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
