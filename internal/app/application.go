package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"roomsync/internal/auth"
	"roomsync/internal/chat"
	"roomsync/internal/config"
	"roomsync/internal/connection"
	"roomsync/internal/persist"
	"roomsync/internal/rest"
	"roomsync/internal/room"
	"roomsync/internal/translate"
	"roomsync/internal/whiteboard"
	"roomsync/pkg/types"
)

// Application assembles the sync engine for one session: REST client,
// outbox journal, persistence bridge, chat and whiteboard stores, the
// websocket channel, and the room controller on top. Dependencies are
// passed down explicitly; nothing reaches for globals.
type Application struct {
	cfg       *config.Config
	identity  *auth.Identity
	sessionID string

	api        *rest.Client
	journal    *persist.Journal
	bridge     *persist.Bridge
	whiteboard *whiteboard.Store
	chat       *chat.Store
	conn       *connection.Manager
	controller *room.Controller
	translator *translate.Client

	mu      sync.Mutex
	running bool
	wasOpen bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds the application for the given session. navigateHome is
// invoked when the session turns out to be ended or gone, after the
// configured delay; it may be nil.
func New(cfg *config.Config, sessionID string, navigateHome func()) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if sessionID == "" {
		return nil, types.ErrInvalidSessionID
	}

	identity, err := auth.IdentityFromToken(cfg.Auth.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.API.Timeout}
	api := rest.NewClient(cfg.API.BaseURL, cfg.Auth.AccessToken, httpClient)

	journal, err := persist.OpenJournal(cfg.Journal.Path, cfg.Journal.Timeout)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	a := &Application{
		cfg:       cfg,
		identity:  identity,
		sessionID: sessionID,
		api:       api,
		journal:   journal,
	}

	a.bridge = persist.NewBridge(api, journal, sessionID, a.handleResult)
	a.whiteboard = whiteboard.NewStore(sessionID, identity.UserID, a.broadcastOperation, a.persistOperation)
	a.chat = chat.NewStore(sessionID, identity.UserID, a.sendChat, func(ctx context.Context, content, messageType string) (*types.SessionMessage, error) {
		return api.PostMessage(ctx, sessionID, content, messageType)
	})
	a.translator = translate.NewClient(cfg.API.BaseURL, cfg.Auth.AccessToken, httpClient)
	a.controller = room.NewController(api, sessionID, identity.UserID, cfg.Room.RedirectDelay, a.whiteboard, a.chat, a.bridge.Rehydrate, navigateHome)

	a.conn = connection.NewManager(cfg.WebSocket, cfg.Reconnect, sessionID, identity.UserID, cfg.Auth.AccessToken, connection.Callbacks{
		OnCanvasOperation: a.controller.HandleCanvasOperation,
		OnSessionMessage:  a.controller.HandleSessionMessage,
		OnPresence:        a.handlePresence,
		OnError:           a.handleChannelError,
		OnStateChange:     a.handleStateChange,
	})

	return a, nil
}

// Start brings the engine up: bridge first so journaled work replays,
// then the channel, then the join flow.
func (a *Application) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	if err := a.bridge.Start(a.ctx); err != nil {
		return err
	}
	if err := a.conn.Start(a.ctx); err != nil {
		return err
	}
	if err := a.controller.Initialize(a.ctx); err != nil {
		return err
	}

	// Initial canvas state comes from the persisted log, not the
	// channel; the channel only carries what happens from now on.
	if err := a.controller.Resync(a.ctx); err != nil {
		log.Printf("[App] Initial canvas load failed: %v", err)
	}

	log.Printf("[App] Session %s ready as %s", a.sessionID, a.identity.UserID)
	return nil
}

// Stop tears the engine down in reverse order.
func (a *Application) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return ErrNotRunning
	}
	a.running = false
	a.mu.Unlock()

	var errs []error
	if err := a.conn.Close(); err != nil && !errors.Is(err, connection.ErrNotStarted) {
		errs = append(errs, err)
	}
	if err := a.bridge.Stop(); err != nil && !errors.Is(err, persist.ErrBridgeNotRunning) {
		errs = append(errs, err)
	}
	if err := a.journal.Close(); err != nil {
		errs = append(errs, err)
	}
	a.controller.Close()
	a.cancel()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// Chat returns the chat store.
func (a *Application) Chat() *chat.Store { return a.chat }

// Whiteboard returns the whiteboard store.
func (a *Application) Whiteboard() *whiteboard.Store { return a.whiteboard }

// Room returns the room controller.
func (a *Application) Room() *room.Controller { return a.controller }

// Translator returns the translation client.
func (a *Application) Translator() *translate.Client { return a.translator }

// Channel returns the websocket channel manager.
func (a *Application) Channel() *connection.Manager { return a.conn }

// Identity returns the authenticated user.
func (a *Application) Identity() *auth.Identity { return a.identity }

// broadcastOperation pushes an operation to the live channel. Channel
// loss is tolerated: every operation also reaches the backend through
// the bridge, and peers catch up from the log when they resync.
func (a *Application) broadcastOperation(op *types.CanvasOperation) error {
	return a.conn.SendCanvasOperation(op)
}

func (a *Application) persistOperation(op *types.CanvasOperation) {
	if err := a.bridge.EnqueueOperation(op); err != nil {
		log.Printf("[App] Failed to enqueue operation %s: %v", op.ID, err)
	}
}

func (a *Application) sendChat(content string) error {
	return a.conn.SendSessionMessage(content)
}

// handleResult marks elements confirmed once the backend acknowledges
// their operation.
func (a *Application) handleResult(result persist.Result) {
	if result.Err == nil && result.ElementID != "" {
		a.whiteboard.Confirm(result.ElementID)
	}
}

func (a *Application) handlePresence(event types.PresenceEvent) {
	go a.controller.HandlePresence(a.ctx, event)
}

func (a *Application) handleChannelError(message string) {
	log.Printf("[App] Channel error: %s", message)
}

// handleStateChange resyncs the canvas when the channel comes back
// after an outage, since operations broadcast during the gap were
// never received live.
func (a *Application) handleStateChange(state connection.State) {
	log.Printf("[App] Channel state: %s", state)

	a.mu.Lock()
	reopened := state.Phase == connection.PhaseOpen && a.wasOpen
	if state.Phase == connection.PhaseOpen {
		a.wasOpen = true
	}
	ctx := a.ctx
	a.mu.Unlock()

	if reopened && ctx != nil {
		go func() {
			if err := a.controller.Resync(ctx); err == nil {
				a.controller.HandlePresence(ctx, types.PresenceEvent{Type: types.FrameTypeUserJoined})
			}
		}()
	}
}
