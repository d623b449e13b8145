package types

import (
	"testing"
	"time"
)

func TestCanvasOperation_NewerThan(t *testing.T) {
	op := &CanvasOperation{Seq: 5, UserID: "bob"}

	if !op.NewerThan(4, "alice") {
		t.Error("Expected higher seq to win")
	}
	if op.NewerThan(6, "alice") {
		t.Error("Expected lower seq to lose")
	}
	// Equal seq falls back to the user id so concurrent writers still
	// agree on a single winner.
	if !op.NewerThan(5, "alice") {
		t.Error("Expected bob to win the tie against alice")
	}
	if op.NewerThan(5, "carol") {
		t.Error("Expected bob to lose the tie against carol")
	}
	if op.NewerThan(5, "bob") {
		t.Error("Expected an operation not to be newer than itself")
	}
}

func TestTextElement_IsBlank(t *testing.T) {
	cases := []struct {
		text  string
		blank bool
	}{
		{"", true},
		{"   ", true},
		{"\t\n", true},
		{"hola", false},
		{"  hola  ", false},
	}
	for _, tc := range cases {
		el := &TextElement{Text: tc.text}
		if el.IsBlank() != tc.blank {
			t.Errorf("IsBlank(%q) = %v, expected %v", tc.text, el.IsBlank(), tc.blank)
		}
	}
}

func TestTextElement_Contains(t *testing.T) {
	el := &TextElement{
		X:     100,
		Y:     200,
		Text:  "hello",
		Style: TextStyle{FontSize: 16},
	}
	// Width is len("hello")*16*0.6 = 48; the box extends one font size
	// above the anchor.
	if !el.Contains(100, 200) {
		t.Error("Expected the anchor corner to hit")
	}
	if !el.Contains(120, 190) {
		t.Error("Expected a point inside the box to hit")
	}
	if el.Contains(160, 190) {
		t.Error("Expected a point right of the box to miss")
	}
	if el.Contains(120, 210) {
		t.Error("Expected a point below the anchor to miss")
	}
	if el.Contains(120, 180) {
		t.Error("Expected a point above the box to miss")
	}
}

func TestCanvasOperation_Validate(t *testing.T) {
	valid := &CanvasOperation{
		ID:        "op-1",
		SessionID: "sess-1",
		UserID:    "alice",
		Type:      OperationTypeTextUpdate,
		Action:    ActionCreateOrUpdate,
		Element:   &TextElement{ID: "el-1", Text: "hi"},
		Seq:       1,
		Timestamp: time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected a valid operation, got %v", err)
	}

	missingElement := *valid
	missingElement.Element = nil
	if err := missingElement.Validate(); err == nil {
		t.Error("Expected an error for a text update without an element")
	}

	clear := *valid
	clear.Type = OperationTypeClear
	clear.Action = ActionClearAll
	clear.Element = nil
	if err := clear.Validate(); err != nil {
		t.Errorf("Expected a clear without an element to be valid, got %v", err)
	}

	badUser := *valid
	badUser.UserID = "has spaces"
	if err := badUser.Validate(); err == nil {
		t.Error("Expected an error for an invalid user id")
	}
}

func TestSessionMessage_Validate(t *testing.T) {
	valid := &SessionMessage{
		ID:        "m-1",
		SessionID: "sess-1",
		UserID:    "alice",
		Content:   "hola",
		Type:      MessageTypeText,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected a valid message, got %v", err)
	}

	empty := *valid
	empty.Content = "   "
	if err := empty.Validate(); err == nil {
		t.Error("Expected an error for blank content")
	}

	long := *valid
	long.Content = string(make([]byte, 2001))
	if err := long.Validate(); err == nil {
		t.Error("Expected an error for oversized content")
	}

	badType := *valid
	badType.Type = "broadcast"
	if err := badType.Validate(); err == nil {
		t.Error("Expected an error for an unknown message type")
	}
}

func TestIsValidUserID(t *testing.T) {
	valid := []string{"alice", "user_42", "a-b-c", "X"}
	for _, id := range valid {
		if !IsValidUserID(id) {
			t.Errorf("Expected %q to be valid", id)
		}
	}

	invalid := []string{"", "has spaces", "semi;colon", string(make([]byte, 51))}
	for _, id := range invalid {
		if IsValidUserID(id) {
			t.Errorf("Expected %q to be invalid", id)
		}
	}
}
