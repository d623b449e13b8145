package connection

import (
	"encoding/json"
	"time"

	"roomsync/pkg/types"
)

// Frame is the JSON envelope for every message on the session channel,
// discriminated by Type.
type Frame struct {
	Type string `json:"type"`

	// canvas_operation fields.
	ID            string         `json:"id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	OperationType string         `json:"operation_type,omitempty"`
	Data          *OperationData `json:"data,omitempty"`
	Seq           int64          `json:"seq,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp,omitempty"`

	// session_message inbound carries the full stored record.
	Message *types.SessionMessage `json:"message,omitempty"`

	// Outbound chat send carries only the raw content.
	Content string `json:"content,omitempty"`

	// error frames.
	Error string `json:"error,omitempty"`
}

// OperationData is the payload of a canvas operation frame: an element
// snapshot for upserts or a bare clear-all marker.
type OperationData struct {
	Element *types.TextElement `json:"element,omitempty"`
	Action  string             `json:"action"`
}

// encodeOperation wraps a canvas operation in its wire envelope.
func encodeOperation(op *types.CanvasOperation) ([]byte, error) {
	frame := Frame{
		Type:          types.FrameTypeCanvasOperation,
		ID:            op.ID,
		SessionID:     op.SessionID,
		OperationType: op.Type,
		Data: &OperationData{
			Element: op.Element,
			Action:  op.Action,
		},
		Seq:       op.Seq,
		UserID:    op.UserID,
		Timestamp: op.Timestamp,
	}
	return json.Marshal(frame)
}

// encodeMessage wraps a chat send in its wire envelope.
func encodeMessage(content string) ([]byte, error) {
	frame := Frame{
		Type:    types.FrameTypeSessionMessage,
		Content: content,
	}
	return json.Marshal(frame)
}

// decodeOperation rebuilds a canvas operation from an inbound frame.
func decodeOperation(frame *Frame) *types.CanvasOperation {
	op := &types.CanvasOperation{
		ID:        frame.ID,
		SessionID: frame.SessionID,
		UserID:    frame.UserID,
		Type:      frame.OperationType,
		Seq:       frame.Seq,
		Timestamp: frame.Timestamp,
	}
	if frame.Data != nil {
		op.Action = frame.Data.Action
		op.Element = frame.Data.Element
	}
	return op
}
