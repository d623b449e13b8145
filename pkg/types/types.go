package types

import (
	"time"
)

// Canvas operation and frame type constants defined exactly as the backend
// emits them so routing logic stays compatible across every component.
const (
	OperationTypeTextUpdate = "text_update"
	OperationTypeClear      = "clear"

	ActionCreateOrUpdate = "create_or_update"
	ActionClearAll       = "clear_all"

	FrameTypeCanvasOperation = "canvas_operation"
	FrameTypeSessionMessage  = "session_message"
	FrameTypeUserJoined      = "user_joined"
	FrameTypeUserLeft        = "user_left"
	FrameTypeError           = "error"

	MessageTypeText   = "text"
	MessageTypeSystem = "system"

	RoleCreator = "creator"
	RoleMember  = "member"

	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)

// Session represents a collaboration room between language-exchange partners.
// Immutable after creation except for status; ended sessions reject new joins.
type Session struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	TargetLanguage  string    `json:"target_language"`
	MaxParticipants int       `json:"max_participants"`
	CreatedBy       string    `json:"created_by"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// UserSummary is the embedded author view carried on messages and participants.
type UserSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// Participant is a session membership record. IsActive is a presence flag
// flipped on disconnect/leave; participants are never hard-deleted while the
// session lives.
type Participant struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	SessionID string      `json:"session_id"`
	Role      string      `json:"role"`
	IsActive  bool        `json:"is_active"`
	JoinedAt  time.Time   `json:"joined_at"`
	User      UserSummary `json:"user"`
}

// TextStyle carries the presentation attributes of a canvas text element.
type TextStyle struct {
	FontSize   int    `json:"font_size"`
	FontFamily string `json:"font_family"`
	Color      string `json:"color"`
	Bold       bool   `json:"bold"`
	Italic     bool   `json:"italic"`
	Underline  bool   `json:"underline"`
}

// TextElement is one text annotation on the shared canvas. IDs are
// client-generated and globally unique per session. Seq orders concurrent
// writes deterministically: an element only accepts an update carrying a
// higher (Seq, OwnerID) pair. Editing is local-only and never serialized;
// Confirmed tracks whether the persistence bridge has acked the element.
type TextElement struct {
	ID        string    `json:"id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Text      string    `json:"text"`
	Style     TextStyle `json:"style"`
	OwnerID   string    `json:"user_id"`
	Seq       int64     `json:"seq"`
	Editing   bool      `json:"-"`
	Confirmed bool      `json:"-"`
}

// CanvasOperation is the wire/storage record for one unit of whiteboard
// change. The live element set is a materialized view obtained by replaying
// create_or_update operations keyed by element id, applying clear as a full
// reset.
type CanvasOperation struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id"`
	Type      string       `json:"operation_type"`
	Action    string       `json:"action"`
	Element   *TextElement `json:"element,omitempty"`
	Seq       int64        `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
}

// SessionMessage is one chat entry, merged from REST history on join and
// live WebSocket deliveries afterwards.
type SessionMessage struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id"`
	Content   string      `json:"content"`
	Type      string      `json:"message_type"`
	CreatedAt time.Time   `json:"created_at"`
	User      UserSummary `json:"user"`
}

// PresenceEvent is a join/leave notification. Presence changes invalidate
// and reload the participant list rather than patching it locally.
type PresenceEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// NewerThan reports whether the operation should replace the current state
// of an element at sequence seq owned by ownerID. Ties on Seq break by user
// id so every observer converges on the same winner.
func (op *CanvasOperation) NewerThan(seq int64, ownerID string) bool {
	if op.Seq != seq {
		return op.Seq > seq
	}
	return op.UserID > ownerID
}

// IsBlank reports whether the element's trimmed text is empty. Blank
// elements are deleted on commit rather than persisted.
func (e *TextElement) IsBlank() bool {
	for _, r := range e.Text {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// ApproxWidth estimates the rendered width of the element's text. This is a
// bounding-box heuristic, not exact glyph metrics.
func (e *TextElement) ApproxWidth() float64 {
	return float64(len(e.Text)) * float64(e.Style.FontSize) * 0.6
}

// Contains reports whether the canvas-local point (x, y) falls inside the
// element's approximate bounding box. The box extends one font-size above
// the anchor point, matching how the canvas draws text baselines.
func (e *TextElement) Contains(x, y float64) bool {
	h := float64(e.Style.FontSize)
	return x >= e.X && x <= e.X+e.ApproxWidth() &&
		y >= e.Y-h && y <= e.Y
}
