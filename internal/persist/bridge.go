package persist

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// Result reports the outcome of mirroring one entry to the backend.
// ElementID is set for canvas operations that carry an element, so the
// caller can mark that element confirmed on success.
type Result struct {
	EntryID   string
	Kind      string
	ElementID string
	Err       error
}

// Bridge mirrors canvas operations and chat messages to the REST
// backend, journaling each entry before the attempt so nothing is lost
// across a crash. Outcomes are reported through the result callback
// instead of being swallowed.
type Bridge struct {
	api       interfaces.SessionAPI
	journal   interfaces.OperationJournal
	sessionID string
	onResult  func(Result)

	opCh  chan *types.CanvasOperation
	msgCh chan *types.SessionMessage

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewBridge creates a bridge for one session. onResult may be nil.
func NewBridge(api interfaces.SessionAPI, journal interfaces.OperationJournal, sessionID string, onResult func(Result)) *Bridge {
	return &Bridge{
		api:       api,
		journal:   journal,
		sessionID: sessionID,
		onResult:  onResult,
		opCh:      make(chan *types.CanvasOperation, 100),
		msgCh:     make(chan *types.SessionMessage, 100),
	}
}

// Start drains any entries journaled by a previous run, then begins
// accepting new work.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrBridgeAlreadyRunning
	}
	b.running = true
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.drainPending()
		b.run()
	}()
	return nil
}

// Stop shuts the bridge down. Entries already journaled but not yet
// delivered stay on disk for the next run.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return ErrBridgeNotRunning
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
	return nil
}

// EnqueueOperation hands a canvas operation to the bridge for
// journaling and delivery.
func (b *Bridge) EnqueueOperation(op *types.CanvasOperation) error {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if !running {
		return ErrBridgeNotRunning
	}

	select {
	case b.opCh <- op:
		return nil
	case <-b.ctx.Done():
		return ErrBridgeNotRunning
	}
}

// EnqueueMessage hands a chat message to the bridge for journaling and
// delivery.
func (b *Bridge) EnqueueMessage(msg *types.SessionMessage) error {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if !running {
		return ErrBridgeNotRunning
	}

	select {
	case b.msgCh <- msg:
		return nil
	case <-b.ctx.Done():
		return ErrBridgeNotRunning
	}
}

// Rehydrate fetches the full operation log for the session so the
// caller can rebuild canvas state after a restart or reconnect.
func (b *Bridge) Rehydrate(ctx context.Context) ([]*types.CanvasOperation, error) {
	return b.api.GetCanvasOperations(ctx, b.sessionID, 0)
}

func (b *Bridge) run() {
	for {
		select {
		case op := <-b.opCh:
			b.deliverOperation(op)
		case msg := <-b.msgCh:
			b.deliverMessage(msg)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Bridge) deliverOperation(op *types.CanvasOperation) {
	entry, err := b.journal.AppendOperation(b.ctx, op)
	if err != nil {
		// Delivery still goes ahead; only crash recovery is weakened.
		log.Printf("[Bridge] Failed to journal operation %s: %v", op.ID, err)
	}

	result := Result{Kind: types.OutboxKindCanvasOperation}
	if entry != nil {
		result.EntryID = entry.ID
	}
	if op.Element != nil {
		result.ElementID = op.Element.ID
	}

	result.Err = b.api.PostCanvasOperation(b.ctx, b.sessionID, op)
	b.settle(entry, result)
}

func (b *Bridge) deliverMessage(msg *types.SessionMessage) {
	entry, err := b.journal.AppendMessage(b.ctx, msg)
	if err != nil {
		log.Printf("[Bridge] Failed to journal message %s: %v", msg.ID, err)
	}

	result := Result{Kind: types.OutboxKindSessionMessage}
	if entry != nil {
		result.EntryID = entry.ID
	}

	_, result.Err = b.api.PostMessage(b.ctx, b.sessionID, msg.Content, msg.Type)
	b.settle(entry, result)
}

// settle clears or marks the journal entry by outcome and reports the
// result.
func (b *Bridge) settle(entry *types.OutboxEntry, result Result) {
	if entry != nil {
		if result.Err == nil {
			if err := b.journal.Delete(b.ctx, entry.ID); err != nil {
				log.Printf("[Bridge] Failed to clear journal entry %s: %v", entry.ID, err)
			}
		} else {
			if err := b.journal.MarkAttempt(b.ctx, entry.ID); err != nil {
				log.Printf("[Bridge] Failed to mark journal entry %s: %v", entry.ID, err)
			}
		}
	}

	if result.Err != nil {
		log.Printf("[Bridge] Delivery failed for %s entry %s: %v", result.Kind, result.EntryID, result.Err)
	}
	if b.onResult != nil {
		b.onResult(result)
	}
}

// drainPending replays entries left over from a previous run, oldest
// first. Entries that fail again stay journaled for the next attempt.
func (b *Bridge) drainPending() {
	entries, err := b.journal.Pending(b.ctx, 100)
	if err != nil {
		log.Printf("[Bridge] Failed to read pending journal entries: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	log.Printf("[Bridge] Replaying %d journaled entries", len(entries))

	for _, entry := range entries {
		if b.ctx.Err() != nil {
			return
		}
		if entry.SessionID != b.sessionID {
			continue
		}
		b.replay(entry)
	}
}

func (b *Bridge) replay(entry *types.OutboxEntry) {
	var err error
	result := Result{EntryID: entry.ID, Kind: entry.Kind}

	switch entry.Kind {
	case types.OutboxKindCanvasOperation:
		var op types.CanvasOperation
		if err = json.Unmarshal(entry.Payload, &op); err == nil {
			if op.Element != nil {
				result.ElementID = op.Element.ID
			}
			err = b.api.PostCanvasOperation(b.ctx, b.sessionID, &op)
		}
	case types.OutboxKindSessionMessage:
		var msg types.SessionMessage
		if err = json.Unmarshal(entry.Payload, &msg); err == nil {
			_, err = b.api.PostMessage(b.ctx, b.sessionID, msg.Content, msg.Type)
		}
	default:
		log.Printf("[Bridge] Dropping journal entry %s with unknown kind %q", entry.ID, entry.Kind)
		if delErr := b.journal.Delete(b.ctx, entry.ID); delErr != nil {
			log.Printf("[Bridge] Failed to clear journal entry %s: %v", entry.ID, delErr)
		}
		return
	}

	result.Err = err
	b.settle(entry, result)
}
