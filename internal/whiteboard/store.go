package whiteboard

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomsync/pkg/types"
)

// DefaultStyle is applied to newly placed text elements until the user
// changes it.
var DefaultStyle = types.TextStyle{
	FontSize:   16,
	FontFamily: "Arial",
	Color:      "#000000",
}

// Store is the authoritative local view of text elements on the shared
// canvas. One canonical map keyed by element id holds local and remote
// elements alike; ownership is a field, filtered only at render time.
//
// Ordering: every operation carries a per-session monotonic sequence
// number. An element only accepts an update with a newer (seq, user id)
// pair, and a clear raises a watermark that drops stale pre-clear updates,
// so replay order is deterministic across clients.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	userID    string
	elements  map[string]*types.TextElement
	nextSeq   int64 // next sequence to assign locally; always > any seen
	clearSeq  int64 // watermark: operations at or below this are pre-clear

	// Injected sinks. Both fire on a non-blank commit: persistence failures
	// never block the broadcast path.
	broadcast func(op *types.CanvasOperation) error
	persist   func(op *types.CanvasOperation)
}

// NewStore creates a whiteboard store for one session. broadcast sends an
// operation to the live channel; persist hands it to the persistence
// bridge. Either may be nil in which case that path is skipped.
func NewStore(sessionID, userID string, broadcast func(op *types.CanvasOperation) error, persist func(op *types.CanvasOperation)) *Store {
	return &Store{
		sessionID: sessionID,
		userID:    userID,
		elements:  make(map[string]*types.TextElement),
		nextSeq:   1,
		broadcast: broadcast,
		persist:   persist,
	}
}

// HandleClick resolves a click at canvas-local coordinates: a hit on an
// existing element's approximate bounding box opens it for editing, an
// empty-area click places a new element at that point. Returns the element
// now being edited.
func (s *Store) HandleClick(x, y float64) *types.TextElement {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el := s.hitTest(x, y); el != nil {
		el.Editing = true
		return copyElement(el)
	}

	el := &types.TextElement{
		ID:      uuid.New().String(),
		X:       x,
		Y:       y,
		Style:   DefaultStyle,
		OwnerID: s.userID,
		Editing: true,
	}
	s.elements[el.ID] = el
	return copyElement(el)
}

// StartEditing reopens an existing element for editing.
func (s *Store) StartEditing(elementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, exists := s.elements[elementID]
	if !exists {
		return ErrElementNotFound
	}
	el.Editing = true
	return nil
}

// UpdateDraft replaces the text of an element currently being edited.
// Draft changes are local-only; nothing is broadcast until commit.
func (s *Store) UpdateDraft(elementID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, exists := s.elements[elementID]
	if !exists {
		return ErrElementNotFound
	}
	if !el.Editing {
		return ErrNotEditing
	}
	el.Text = text
	return nil
}

// SetStyle updates the style of an element being edited.
func (s *Store) SetStyle(elementID string, style types.TextStyle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, exists := s.elements[elementID]
	if !exists {
		return ErrElementNotFound
	}
	if !el.Editing {
		return ErrNotEditing
	}
	el.Style = style
	return nil
}

// CommitEdit finalizes an element on blur/Enter. Blank text deletes the
// element locally with zero persistence or broadcast calls. Non-blank text
// takes ownership, assigns the next sequence number, and fires both the
// persist and broadcast paths.
func (s *Store) CommitEdit(elementID string) (*types.TextElement, error) {
	s.mu.Lock()

	el, exists := s.elements[elementID]
	if !exists {
		s.mu.Unlock()
		return nil, ErrElementNotFound
	}
	if !el.Editing {
		s.mu.Unlock()
		return nil, ErrNotEditing
	}

	el.Editing = false

	if el.IsBlank() {
		delete(s.elements, elementID)
		s.mu.Unlock()
		return nil, nil
	}

	el.OwnerID = s.userID
	el.Seq = s.nextSeq
	s.nextSeq++
	el.Confirmed = false

	op := &types.CanvasOperation{
		ID:        uuid.New().String(),
		SessionID: s.sessionID,
		UserID:    s.userID,
		Type:      types.OperationTypeTextUpdate,
		Action:    types.ActionCreateOrUpdate,
		Element:   copyElement(el),
		Seq:       el.Seq,
		Timestamp: time.Now(),
	}
	committed := copyElement(el)
	s.mu.Unlock()

	s.dispatch(op)
	return committed, nil
}

// ClearAll wipes the entire canvas for every participant. Destructive,
// session-wide, no undo.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.elements = make(map[string]*types.TextElement)
	seq := s.nextSeq
	s.nextSeq++
	s.clearSeq = seq

	op := &types.CanvasOperation{
		ID:        uuid.New().String(),
		SessionID: s.sessionID,
		UserID:    s.userID,
		Type:      types.OperationTypeClear,
		Action:    types.ActionClearAll,
		Seq:       seq,
		Timestamp: time.Now(),
	}
	s.mu.Unlock()

	s.dispatch(op)
}

// ApplyRemote merges one live operation from another participant.
// Operations from the current user are ignored: the local store already
// reflects its own edits optimistically and must not render them twice.
func (s *Store) ApplyRemote(op *types.CanvasOperation) {
	if op == nil || op.UserID == s.userID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(op, true)
}

// Rehydrate replays the persisted operation log into an empty or stale
// store. Unlike ApplyRemote it applies the current user's own operations
// too: after a reload they exist nowhere else.
func (s *Store) Rehydrate(ops []*types.CanvasOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		s.apply(op, true)
	}
}

// apply merges one operation under the store lock.
func (s *Store) apply(op *types.CanvasOperation, confirmed bool) {
	if op.Seq >= s.nextSeq {
		s.nextSeq = op.Seq + 1
	}

	switch op.Type {
	case types.OperationTypeClear:
		s.elements = make(map[string]*types.TextElement)
		if op.Seq > s.clearSeq {
			s.clearSeq = op.Seq
		}

	case types.OperationTypeTextUpdate:
		if op.Element == nil || op.Action != types.ActionCreateOrUpdate {
			return
		}
		// Stale update from before a clear: drop it, the clear wins.
		if op.Seq <= s.clearSeq {
			return
		}

		existing, exists := s.elements[op.Element.ID]
		if exists {
			// Never clobber an element mid-edit, and only accept updates
			// that are newer under (seq, user id) ordering.
			if existing.Editing || !op.NewerThan(existing.Seq, existing.OwnerID) {
				return
			}
		}

		el := copyElement(op.Element)
		el.OwnerID = op.UserID
		el.Seq = op.Seq
		el.Editing = false
		el.Confirmed = confirmed
		s.elements[el.ID] = el
	}
}

// Confirm marks an element as durably stored after the persistence bridge
// acknowledges its operation. Unconfirmed elements can be surfaced in the
// UI instead of failing silently.
func (s *Store) Confirm(elementID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, exists := s.elements[elementID]; exists {
		el.Confirmed = true
	}
}

// Elements returns the render list: every element not currently being
// edited, ordered by (seq, id) for a stable draw order. Copies are
// returned; the caller never shares memory with the store.
func (s *Store) Elements() []*types.TextElement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.TextElement, 0, len(s.elements))
	for _, el := range s.elements {
		if el.Editing {
			continue
		}
		out = append(out, copyElement(el))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// EditingElement returns the element currently under edit, if any. The UI
// renders it as a live input overlay instead of drawing it to the canvas.
func (s *Store) EditingElement() *types.TextElement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, el := range s.elements {
		if el.Editing {
			return copyElement(el)
		}
	}
	return nil
}

// Get returns a copy of one element by id.
func (s *Store) Get(elementID string) (*types.TextElement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, exists := s.elements[elementID]
	if !exists {
		return nil, false
	}
	return copyElement(el), true
}

// Len returns the number of elements in the store, editing included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.elements)
}

// hitTest finds the topmost element whose approximate bounding box contains
// the point. Caller holds the lock.
func (s *Store) hitTest(x, y float64) *types.TextElement {
	var hit *types.TextElement
	for _, el := range s.elements {
		if !el.Contains(x, y) {
			continue
		}
		// Prefer the most recently written element when boxes overlap.
		if hit == nil || el.Seq > hit.Seq {
			hit = el
		}
	}
	return hit
}

// dispatch fires the persist and broadcast paths for a committed
// operation. Both fire; a broadcast failure is logged and does not roll
// back local state.
func (s *Store) dispatch(op *types.CanvasOperation) {
	if s.persist != nil {
		s.persist(op)
	}
	if s.broadcast != nil {
		if err := s.broadcast(op); err != nil {
			log.Printf("[Whiteboard] Failed to broadcast operation %s: %v", op.ID, err)
		}
	}
}

func copyElement(el *types.TextElement) *types.TextElement {
	c := *el
	return &c
}
