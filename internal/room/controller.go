package room

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"roomsync/internal/chat"
	"roomsync/internal/whiteboard"
	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// Status tracks where the controller is in the join flow.
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoadingParticipants
	StatusJoining
	StatusLoadingMessages
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoadingParticipants:
		return "loading_participants"
	case StatusJoining:
		return "joining"
	case StatusLoadingMessages:
		return "loading_messages"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Controller drives one user's membership in a session: the join flow,
// presence bookkeeping, and routing of inbound events to the chat and
// whiteboard stores. The participant list is always refetched from the
// backend, never patched locally, so it cannot drift out of sync.
type Controller struct {
	api           interfaces.SessionAPI
	sessionID     string
	userID        string
	redirectDelay time.Duration
	navigateHome  func()

	whiteboard *whiteboard.Store
	chat       *chat.Store

	rehydrate func(ctx context.Context) ([]*types.CanvasOperation, error)

	mu           sync.RWMutex
	status       Status
	err          error
	participants []*types.Participant
	role         string
	redirect     *time.Timer
}

// NewController wires the controller to its collaborators. navigateHome
// and rehydrate may be nil.
func NewController(api interfaces.SessionAPI, sessionID, userID string, redirectDelay time.Duration, wb *whiteboard.Store, ch *chat.Store, rehydrate func(ctx context.Context) ([]*types.CanvasOperation, error), navigateHome func()) *Controller {
	return &Controller{
		api:           api,
		sessionID:     sessionID,
		userID:        userID,
		redirectDelay: redirectDelay,
		navigateHome:  navigateHome,
		whiteboard:    wb,
		chat:          ch,
		rehydrate:     rehydrate,
		status:        StatusUninitialized,
	}
}

// Initialize runs the join flow: load participants, join if this user
// is not already an active member, reload the roster after joining,
// then load chat history. An ended or missing session is terminal and
// schedules navigation home after the configured delay.
func (c *Controller) Initialize(ctx context.Context) error {
	c.setStatus(StatusLoadingParticipants)

	participants, err := c.api.GetParticipants(ctx, c.sessionID)
	if err != nil {
		return c.fail(err)
	}
	c.setParticipants(participants)

	if !c.isActiveMember(participants) {
		c.setStatus(StatusJoining)
		if _, err := c.api.JoinSession(ctx, c.sessionID); err != nil {
			return c.fail(err)
		}
		// The join changed the roster; refetch rather than patching it
		// in from the join response.
		participants, err = c.api.GetParticipants(ctx, c.sessionID)
		if err != nil {
			return c.fail(err)
		}
		c.setParticipants(participants)
	}

	c.setStatus(StatusLoadingMessages)
	messages, err := c.api.GetMessages(ctx, c.sessionID)
	if err != nil {
		// A forbidden history leaves the chat empty but the session
		// usable. Anything terminal still ends the flow.
		if errors.Is(err, interfaces.ErrSessionEnded) || errors.Is(err, interfaces.ErrSessionNotFound) {
			return c.fail(err)
		}
		log.Printf("[Room] Failed to load message history for session %s: %v", c.sessionID, err)
	} else {
		c.chat.LoadHistory(messages)
	}

	c.setStatus(StatusReady)
	return nil
}

// Resync replays the persisted operation log into the whiteboard,
// typically after the channel reconnects.
func (c *Controller) Resync(ctx context.Context) error {
	if c.rehydrate == nil {
		return nil
	}
	ops, err := c.rehydrate(ctx)
	if err != nil {
		log.Printf("[Room] Failed to rehydrate canvas for session %s: %v", c.sessionID, err)
		return err
	}
	c.whiteboard.Rehydrate(ops)
	return nil
}

// HandlePresence refetches the participant roster. The event itself is
// only a hint that the roster changed; the backend list is the truth.
func (c *Controller) HandlePresence(ctx context.Context, event types.PresenceEvent) {
	participants, err := c.api.GetParticipants(ctx, c.sessionID)
	if err != nil {
		log.Printf("[Room] Failed to refresh participants after %s event: %v", event.Type, err)
		return
	}
	c.setParticipants(participants)
}

// HandleCanvasOperation routes an inbound canvas operation to the
// whiteboard store.
func (c *Controller) HandleCanvasOperation(op *types.CanvasOperation) {
	c.whiteboard.ApplyRemote(op)
}

// HandleSessionMessage routes an inbound chat message to the chat
// store.
func (c *Controller) HandleSessionMessage(msg *types.SessionMessage) {
	c.chat.Append(msg)
}

// Leave removes this user from the session.
func (c *Controller) Leave(ctx context.Context) error {
	return c.api.LeaveSession(ctx, c.sessionID)
}

// End ends the session for everyone. The backend enforces that only
// the creator may do this; a forbidden result is surfaced inline.
func (c *Controller) End(ctx context.Context) error {
	if err := c.api.EndSession(ctx, c.sessionID); err != nil {
		return err
	}
	if c.navigateHome != nil {
		c.navigateHome()
	}
	return nil
}

// Status returns the current join-flow status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Err returns the error that put the controller in StatusError, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Participants returns the last roster fetched from the backend.
func (c *Controller) Participants() []*types.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Participant, len(c.participants))
	copy(out, c.participants)
	return out
}

// Role returns this user's role in the session, if known.
func (c *Controller) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// IsCreator reports whether this user created the session.
func (c *Controller) IsCreator() bool {
	return c.Role() == types.RoleCreator
}

// Close cancels any pending navigation timer.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.redirect != nil {
		c.redirect.Stop()
		c.redirect = nil
	}
}

func (c *Controller) setStatus(status Status) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func (c *Controller) setParticipants(participants []*types.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participants = participants
	for _, p := range participants {
		if p.UserID == c.userID {
			c.role = p.Role
			break
		}
	}
}

func (c *Controller) isActiveMember(participants []*types.Participant) bool {
	for _, p := range participants {
		if p.UserID == c.userID && p.IsActive {
			return true
		}
	}
	return false
}

// fail records a terminal error. An ended or missing session schedules
// navigation home after the redirect delay; a forbidden join is shown
// in place without navigating anywhere.
func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.status = StatusError
	c.err = err
	shouldRedirect := errors.Is(err, interfaces.ErrSessionEnded) || errors.Is(err, interfaces.ErrSessionNotFound)
	if shouldRedirect && c.navigateHome != nil && c.redirect == nil {
		c.redirect = time.AfterFunc(c.redirectDelay, c.navigateHome)
	}
	c.mu.Unlock()

	log.Printf("[Room] Join flow failed for session %s: %v", c.sessionID, err)
	return err
}
