package persist

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"roomsync/pkg/types"
)

// memJournal is an in-memory OperationJournal for bridge tests.
type memJournal struct {
	mu      sync.Mutex
	entries map[string]*types.OutboxEntry
	order   []string
	nextID  int
}

func newMemJournal() *memJournal {
	return &memJournal{entries: make(map[string]*types.OutboxEntry)}
}

func (m *memJournal) add(kind, sessionID string, payload []byte) *types.OutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry := &types.OutboxEntry{
		ID:         string(rune('a' + m.nextID - 1)),
		Kind:       kind,
		SessionID:  sessionID,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
	m.entries[entry.ID] = entry
	m.order = append(m.order, entry.ID)
	return entry
}

func (m *memJournal) AppendOperation(ctx context.Context, op *types.CanvasOperation) (*types.OutboxEntry, error) {
	payload, _ := json.Marshal(op)
	return m.add(types.OutboxKindCanvasOperation, op.SessionID, payload), nil
}

func (m *memJournal) AppendMessage(ctx context.Context, msg *types.SessionMessage) (*types.OutboxEntry, error) {
	payload, _ := json.Marshal(msg)
	return m.add(types.OutboxKindSessionMessage, msg.SessionID, payload), nil
}

func (m *memJournal) Pending(ctx context.Context, limit int) ([]*types.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.OutboxEntry
	for _, id := range m.order {
		if entry, ok := m.entries[id]; ok {
			out = append(out, entry)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memJournal) MarkAttempt(ctx context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[entryID]; ok {
		entry.Attempts++
	}
	return nil
}

func (m *memJournal) Delete(ctx context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, entryID)
	return nil
}

func (m *memJournal) Close() error { return nil }

func (m *memJournal) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// stubAPI implements only the calls the bridge makes.
type stubAPI struct {
	mu      sync.Mutex
	postErr error
	ops     []*types.CanvasOperation
	msgs    []string
}

func (s *stubAPI) GetParticipants(ctx context.Context, sessionID string) ([]*types.Participant, error) {
	return nil, nil
}
func (s *stubAPI) GetMessages(ctx context.Context, sessionID string) ([]*types.SessionMessage, error) {
	return nil, nil
}
func (s *stubAPI) JoinSession(ctx context.Context, sessionID string) (*types.Participant, error) {
	return nil, nil
}
func (s *stubAPI) LeaveSession(ctx context.Context, sessionID string) error { return nil }
func (s *stubAPI) EndSession(ctx context.Context, sessionID string) error   { return nil }

func (s *stubAPI) GetCanvasOperations(ctx context.Context, sessionID string, since int64) ([]*types.CanvasOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops, nil
}

func (s *stubAPI) PostCanvasOperation(ctx context.Context, sessionID string, op *types.CanvasOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postErr != nil {
		return s.postErr
	}
	s.ops = append(s.ops, op)
	return nil
}

func (s *stubAPI) PostMessage(ctx context.Context, sessionID, content, messageType string) (*types.SessionMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postErr != nil {
		return nil, s.postErr
	}
	s.msgs = append(s.msgs, content)
	return &types.SessionMessage{ID: "m-stored", Content: content, Type: messageType}, nil
}

func (s *stubAPI) opsLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

func collectResults() (func(Result), chan Result) {
	ch := make(chan Result, 10)
	return func(r Result) { ch <- r }, ch
}

func awaitResult(t *testing.T, ch chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a bridge result")
		return Result{}
	}
}

func TestBridge_SuccessfulDeliveryClearsJournal(t *testing.T) {
	journal := newMemJournal()
	api := &stubAPI{}
	onResult, results := collectResults()

	bridge := NewBridge(api, journal, "sess-1", onResult)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer bridge.Stop()

	op := &types.CanvasOperation{
		ID:        "op-1",
		SessionID: "sess-1",
		UserID:    "alice",
		Type:      types.OperationTypeTextUpdate,
		Action:    types.ActionCreateOrUpdate,
		Element:   &types.TextElement{ID: "el-1", Text: "hola"},
		Seq:       1,
	}
	if err := bridge.EnqueueOperation(op); err != nil {
		t.Fatalf("EnqueueOperation failed: %v", err)
	}

	result := awaitResult(t, results)
	if result.Err != nil {
		t.Fatalf("Expected a successful delivery, got %v", result.Err)
	}
	if result.ElementID != "el-1" {
		t.Errorf("Expected the result to carry the element id, got %q", result.ElementID)
	}
	if journal.len() != 0 {
		t.Errorf("Expected the journal entry to be cleared, %d remain", journal.len())
	}
	if api.opsLen() != 1 {
		t.Errorf("Expected the operation to reach the backend, got %d", api.opsLen())
	}
}

func TestBridge_FailedDeliveryKeepsEntry(t *testing.T) {
	journal := newMemJournal()
	api := &stubAPI{postErr: errors.New("backend down")}
	onResult, results := collectResults()

	bridge := NewBridge(api, journal, "sess-1", onResult)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer bridge.Stop()

	msg := &types.SessionMessage{ID: "m-1", SessionID: "sess-1", UserID: "alice", Content: "hola", Type: types.MessageTypeText}
	if err := bridge.EnqueueMessage(msg); err != nil {
		t.Fatalf("EnqueueMessage failed: %v", err)
	}

	result := awaitResult(t, results)
	if result.Err == nil {
		t.Fatal("Expected the delivery failure to be reported")
	}
	if journal.len() != 1 {
		t.Fatalf("Expected the entry to stay journaled, got %d", journal.len())
	}
	pending, _ := journal.Pending(context.Background(), 10)
	if pending[0].Attempts != 1 {
		t.Errorf("Expected 1 recorded attempt, got %d", pending[0].Attempts)
	}
}

func TestBridge_DrainsJournaledEntriesOnStart(t *testing.T) {
	journal := newMemJournal()
	api := &stubAPI{}
	onResult, results := collectResults()

	// A previous run left one undelivered operation behind.
	op := &types.CanvasOperation{
		ID:        "op-old",
		SessionID: "sess-1",
		UserID:    "alice",
		Type:      types.OperationTypeTextUpdate,
		Action:    types.ActionCreateOrUpdate,
		Element:   &types.TextElement{ID: "el-old", Text: "from last time"},
		Seq:       9,
	}
	if _, err := journal.AppendOperation(context.Background(), op); err != nil {
		t.Fatalf("Seeding the journal failed: %v", err)
	}

	bridge := NewBridge(api, journal, "sess-1", onResult)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer bridge.Stop()

	result := awaitResult(t, results)
	if result.Err != nil {
		t.Fatalf("Expected the replay to succeed, got %v", result.Err)
	}
	if result.ElementID != "el-old" {
		t.Errorf("Expected the replayed element id, got %q", result.ElementID)
	}
	if journal.len() != 0 {
		t.Errorf("Expected the drained entry to be cleared, %d remain", journal.len())
	}
}

func TestBridge_SkipsOtherSessionsOnDrain(t *testing.T) {
	journal := newMemJournal()
	api := &stubAPI{}

	other := &types.CanvasOperation{
		ID:        "op-other",
		SessionID: "sess-other",
		UserID:    "alice",
		Type:      types.OperationTypeTextUpdate,
		Action:    types.ActionCreateOrUpdate,
		Element:   &types.TextElement{ID: "el-x", Text: "different room"},
		Seq:       1,
	}
	journal.AppendOperation(context.Background(), other)

	bridge := NewBridge(api, journal, "sess-1", nil)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer bridge.Stop()

	time.Sleep(50 * time.Millisecond)
	if journal.len() != 1 {
		t.Errorf("Expected the foreign entry to stay journaled, got %d", journal.len())
	}
	if api.opsLen() != 0 {
		t.Errorf("Expected no delivery for a foreign session, got %d", api.opsLen())
	}
}

func TestBridge_RejectsWorkWhenStopped(t *testing.T) {
	bridge := NewBridge(&stubAPI{}, newMemJournal(), "sess-1", nil)

	err := bridge.EnqueueOperation(&types.CanvasOperation{ID: "op-1"})
	if !errors.Is(err, ErrBridgeNotRunning) {
		t.Errorf("Expected ErrBridgeNotRunning, got %v", err)
	}
	if err := bridge.Stop(); !errors.Is(err, ErrBridgeNotRunning) {
		t.Errorf("Expected ErrBridgeNotRunning from Stop, got %v", err)
	}
}
