package connection

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"roomsync/internal/config"
	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// Callbacks receives inbound traffic and lifecycle notifications. Nil
// fields are skipped. Callbacks run on the read goroutine, so they must
// not block.
type Callbacks struct {
	OnCanvasOperation func(*types.CanvasOperation)
	OnSessionMessage  func(*types.SessionMessage)
	OnPresence        func(types.PresenceEvent)
	OnError           func(string)
	OnStateChange     func(State)
}

// Manager owns the websocket channel for one session: it dials, pumps
// reads and writes, heartbeats, and reconnects with exponential backoff
// when the link drops. All writes flow through a single writer goroutine
// so the connection never sees concurrent WriteMessage calls.
type Manager struct {
	wsConfig  *config.WebSocketConfig
	reconnect *config.ReconnectConfig
	sessionID string
	userID    string
	token     string
	callbacks Callbacks

	dialer  *websocket.Dialer
	writeCh chan []byte

	mu      sync.RWMutex
	conn    *websocket.Conn
	state   State
	started bool

	// reconnectCh wakes the run loop out of a backoff wait or a failed
	// terminal wait for a user-driven retry.
	reconnectCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ interfaces.Channel = (*Manager)(nil)

// NewManager creates a manager for the given session. Start must be
// called before the channel carries traffic.
func NewManager(wsConfig *config.WebSocketConfig, reconnect *config.ReconnectConfig, sessionID, userID, token string, callbacks Callbacks) *Manager {
	return &Manager{
		wsConfig:  wsConfig,
		reconnect: reconnect,
		sessionID: sessionID,
		userID:    userID,
		token:     token,
		callbacks: callbacks,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		writeCh:     make(chan []byte, wsConfig.BufferSize),
		state:       State{Phase: PhaseDisconnected},
		reconnectCh: make(chan struct{}, 1),
	}
}

// Start launches the connect loop. It returns once the loop is running;
// the first dial happens asynchronously.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()
	return nil
}

// State returns the current channel state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsOpen reports whether the channel can carry traffic right now.
func (m *Manager) IsOpen() bool {
	return m.State().Phase == PhaseOpen
}

// SendCanvasOperation queues a canvas operation for delivery. It fails
// fast when the channel is down so the caller can fall back to REST.
func (m *Manager) SendCanvasOperation(op *types.CanvasOperation) error {
	data, err := encodeOperation(op)
	if err != nil {
		return err
	}
	return m.enqueue(data)
}

// SendSessionMessage queues a chat message for delivery.
func (m *Manager) SendSessionMessage(content string) error {
	data, err := encodeMessage(content)
	if err != nil {
		return err
	}
	return m.enqueue(data)
}

func (m *Manager) enqueue(data []byte) error {
	if !m.IsOpen() {
		return ErrNotConnected
	}
	select {
	case m.writeCh <- data:
		return nil
	default:
		return ErrWriteQueueFull
	}
}

// Reconnect asks the run loop to retry immediately, resetting the
// backoff schedule. Safe to call from any state; a no-op while open.
func (m *Manager) Reconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
	}
}

// Close tears the channel down and stops the connect loop.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.started = false
	cancel := m.cancel
	conn := m.conn
	m.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}
	m.wg.Wait()

	m.setState(State{Phase: PhaseDisconnected})
	return nil
}

// run is the connect loop: dial, pump until the link drops, back off,
// repeat. It exits only when the manager context is cancelled.
func (m *Manager) run() {
	defer m.wg.Done()

	schedule := m.newBackOff()
	attempt := 0

	for {
		if m.ctx.Err() != nil {
			return
		}

		m.setState(State{Phase: PhaseConnecting, Attempt: attempt})
		conn, err := m.dial()
		if err == nil {
			attempt = 0
			schedule.Reset()
			m.setState(State{Phase: PhaseOpen})
			err = m.pump(conn)
			if m.ctx.Err() != nil {
				return
			}
			log.Printf("[Connection] Channel lost for session %s: %v", m.sessionID, err)
		} else {
			log.Printf("[Connection] Dial failed for session %s: %v", m.sessionID, err)
		}

		attempt++
		if m.reconnect.MaxRetries > 0 && uint64(attempt) > m.reconnect.MaxRetries {
			m.setState(State{Phase: PhaseFailed, Attempt: attempt, Err: ErrRetriesExhausted})
			// Terminal until the user asks for another round.
			select {
			case <-m.reconnectCh:
				attempt = 0
				schedule.Reset()
				continue
			case <-m.ctx.Done():
				return
			}
		}

		wait := schedule.NextBackOff()
		m.setState(State{Phase: PhaseBackoff, Attempt: attempt, Err: err})
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-m.reconnectCh:
			timer.Stop()
			attempt = 0
			schedule.Reset()
		case <-m.ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.reconnect.InitialInterval
	b.MaxInterval = m.reconnect.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (m *Manager) dial() (*websocket.Conn, error) {
	u, err := url.Parse(m.wsConfig.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("session_id", m.sessionID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if m.token != "" {
		header.Set("Authorization", "Bearer "+m.token)
	}

	conn, _, err := m.dialer.DialContext(m.ctx, u.String(), header)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	return conn, nil
}

// pump runs the writer and heartbeat for one connection and reads until
// the link drops. It returns the read error that ended the connection.
func (m *Manager) pump(conn *websocket.Conn) error {
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			conn.Close()
		})
	}
	defer stop()

	conn.SetReadDeadline(time.Now().Add(m.wsConfig.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(m.wsConfig.ReadTimeout))
		return nil
	})

	go m.writeLoop(conn, done, stop)
	go m.pingLoop(conn, done, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			if m.conn == conn {
				m.conn = nil
			}
			m.mu.Unlock()
			return err
		}
		m.dispatch(data)
	}
}

func (m *Manager) writeLoop(conn *websocket.Conn, done chan struct{}, stop func()) {
	for {
		select {
		case data := <-m.writeCh:
			conn.SetWriteDeadline(time.Now().Add(m.wsConfig.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[Connection] Write failed for session %s: %v", m.sessionID, err)
				stop()
				return
			}
		case <-done:
			return
		case <-m.ctx.Done():
			stop()
			return
		}
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn, done chan struct{}, stop func()) {
	ticker := time.NewTicker(m.wsConfig.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(m.wsConfig.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				stop()
				return
			}
		case <-done:
			return
		case <-m.ctx.Done():
			stop()
			return
		}
	}
}

// dispatch routes one inbound frame to the matching callback. Unknown
// frame types are logged and dropped so protocol additions never kill
// the read loop.
func (m *Manager) dispatch(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Printf("[Connection] Dropping malformed frame: %v", err)
		return
	}

	switch frame.Type {
	case types.FrameTypeCanvasOperation:
		if m.callbacks.OnCanvasOperation != nil {
			m.callbacks.OnCanvasOperation(decodeOperation(&frame))
		}
	case types.FrameTypeSessionMessage:
		if m.callbacks.OnSessionMessage != nil && frame.Message != nil {
			m.callbacks.OnSessionMessage(frame.Message)
		}
	case types.FrameTypeUserJoined, types.FrameTypeUserLeft:
		if m.callbacks.OnPresence != nil {
			m.callbacks.OnPresence(types.PresenceEvent{Type: frame.Type, UserID: frame.UserID})
		}
	case types.FrameTypeError:
		if m.callbacks.OnError != nil {
			m.callbacks.OnError(frame.Error)
		}
	default:
		log.Printf("[Connection] Dropping frame with unknown type %q", frame.Type)
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	if m.callbacks.OnStateChange != nil {
		m.callbacks.OnStateChange(state)
	}
}
