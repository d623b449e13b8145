package fixtures

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"roomsync/pkg/types"
)

// Backend is an in-memory stand-in for the platform API: the session
// REST endpoints plus a websocket fan-out per session. It exists for
// tests; nothing about it survives a restart.
type Backend struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	improved int
	limit    int

	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

type sessionState struct {
	session      *types.Session
	participants []*types.Participant
	messages     []*types.SessionMessage
	operations   []*types.CanvasOperation
	clients      map[*wsClient]bool
}

type wsClient struct {
	userID  string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewBackend creates an empty backend with a generous improve quota.
func NewBackend() *Backend {
	b := &Backend{
		sessions: make(map[string]*sessionState),
		limit:    10,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions/", b.handleSessions)
	mux.HandleFunc("/api/translate", b.handleTranslate)
	mux.HandleFunc("/api/messages/improve", b.handleImprove)
	mux.HandleFunc("/ws", b.handleWebSocket)
	b.mux = mux
	return b
}

// Handler returns the backend's HTTP handler for httptest.NewServer.
func (b *Backend) Handler() http.Handler { return b.mux }

// AddSession registers a session, active unless the passed session says
// otherwise.
func (b *Backend) AddSession(session *types.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if session.Status == "" {
		session.Status = types.SessionStatusActive
	}
	b.sessions[session.ID] = &sessionState{
		session: session,
		clients: make(map[*wsClient]bool),
	}
}

// AddParticipant seeds a participant without going through the join
// endpoint.
func (b *Backend) AddParticipant(sessionID string, participant *types.Participant) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.sessions[sessionID]; ok {
		state.participants = append(state.participants, participant)
	}
}

// AddMessage seeds chat history.
func (b *Backend) AddMessage(sessionID string, msg *types.SessionMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.sessions[sessionID]; ok {
		state.messages = append(state.messages, msg)
	}
}

// EndSession flips a session to ended, making every endpoint return 410.
func (b *Backend) EndSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.sessions[sessionID]; ok {
		state.session.Status = types.SessionStatusEnded
	}
}

// Operations returns the stored operation log for assertions.
func (b *Backend) Operations(sessionID string) []*types.CanvasOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]*types.CanvasOperation, len(state.operations))
	copy(out, state.operations)
	return out
}

// Messages returns the stored chat log for assertions.
func (b *Backend) Messages(sessionID string) []*types.SessionMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]*types.SessionMessage, len(state.messages))
	copy(out, state.messages)
	return out
}

// SetImproveLimit caps the improve quota for upgrade-path tests.
func (b *Backend) SetImproveLimit(limit int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = limit
}

// handleSessions dispatches /api/sessions/{id}/{resource}.
func (b *Backend) handleSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := b.authenticate(w, r)
	if !ok {
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if len(parts) < 2 {
		http.NotFound(w, r)
		return
	}
	sessionID, resource := parts[0], parts[1]

	b.mu.Lock()
	state, exists := b.sessions[sessionID]
	ended := exists && state.session.Status == types.SessionStatusEnded
	b.mu.Unlock()

	if !exists {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}
	if ended && !(resource == "end" && r.Method == http.MethodPost) {
		http.Error(w, `{"error":"session has ended"}`, http.StatusGone)
		return
	}

	switch {
	case resource == "participants" && r.Method == http.MethodGet:
		b.writeParticipants(w, state)
	case resource == "messages" && r.Method == http.MethodGet:
		b.writeMessages(w, state)
	case resource == "messages" && r.Method == http.MethodPost:
		b.postMessage(w, r, state, userID)
	case resource == "canvas-operations" && r.Method == http.MethodGet:
		b.writeOperations(w, r, state)
	case resource == "canvas-operations" && r.Method == http.MethodPost:
		b.postOperation(w, r, state, sessionID, userID)
	case resource == "join" && r.Method == http.MethodPost:
		b.join(w, state, sessionID, userID)
	case resource == "leave" && r.Method == http.MethodPost:
		b.leave(w, state, userID)
	case resource == "end" && r.Method == http.MethodPost:
		b.end(w, state, userID)
	default:
		http.NotFound(w, r)
	}
}

func (b *Backend) writeParticipants(w http.ResponseWriter, state *sessionState) {
	b.mu.Lock()
	payload := map[string]interface{}{"participants": state.participants}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, payload)
}

func (b *Backend) writeMessages(w http.ResponseWriter, state *sessionState) {
	b.mu.Lock()
	payload := map[string]interface{}{"messages": state.messages}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, payload)
}

func (b *Backend) writeOperations(w http.ResponseWriter, r *http.Request, state *sessionState) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	b.mu.Lock()
	var ops []*types.CanvasOperation
	for _, op := range state.operations {
		if op.Seq > since {
			ops = append(ops, op)
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"operations": ops})
}

func (b *Backend) postMessage(w http.ResponseWriter, r *http.Request, state *sessionState, userID string) {
	var req struct {
		MessageText string `json:"message_text"`
		MessageType string `json:"message_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}
	if req.MessageType == "" {
		req.MessageType = types.MessageTypeText
	}

	msg := b.storeMessage(state, userID, req.MessageText, req.MessageType)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"message": msg})
}

func (b *Backend) storeMessage(state *sessionState, userID, content, messageType string) *types.SessionMessage {
	b.mu.Lock()
	msg := &types.SessionMessage{
		ID:        uuid.New().String(),
		SessionID: state.session.ID,
		UserID:    userID,
		Content:   content,
		Type:      messageType,
		CreatedAt: time.Now().UTC(),
		User:      types.UserSummary{ID: userID, Name: userID},
	}
	state.messages = append(state.messages, msg)
	clients := clientSnapshot(state)
	b.mu.Unlock()

	frame := map[string]interface{}{
		"type":    types.FrameTypeSessionMessage,
		"message": msg,
	}
	broadcast(clients, frame, "")
	return msg
}

func (b *Backend) postOperation(w http.ResponseWriter, r *http.Request, state *sessionState, sessionID, userID string) {
	var req struct {
		OperationType string `json:"operation_type"`
		OperationData struct {
			Element *types.TextElement `json:"element"`
			Action  string             `json:"action"`
			Seq     int64              `json:"seq"`
			ID      string             `json:"id"`
		} `json:"operation_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	op := &types.CanvasOperation{
		ID:        req.OperationData.ID,
		SessionID: sessionID,
		UserID:    userID,
		Type:      req.OperationType,
		Action:    req.OperationData.Action,
		Element:   req.OperationData.Element,
		Seq:       req.OperationData.Seq,
		Timestamp: time.Now().UTC(),
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.Seq == 0 && op.Element != nil {
		op.Seq = op.Element.Seq
	}

	b.mu.Lock()
	state.operations = append(state.operations, op)
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]interface{}{"operation": op})
}

func (b *Backend) join(w http.ResponseWriter, state *sessionState, sessionID, userID string) {
	b.mu.Lock()
	for _, p := range state.participants {
		if p.UserID == userID && p.IsActive {
			b.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]interface{}{"participant": p})
			return
		}
	}
	if state.session.MaxParticipants > 0 && len(state.participants) >= state.session.MaxParticipants {
		b.mu.Unlock()
		http.Error(w, `{"error":"session is full"}`, http.StatusForbidden)
		return
	}

	participant := &types.Participant{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Role:      types.RoleMember,
		IsActive:  true,
		JoinedAt:  time.Now().UTC(),
		User:      types.UserSummary{ID: userID, Name: userID},
	}
	if state.session.CreatedBy == userID {
		participant.Role = types.RoleCreator
	}
	state.participants = append(state.participants, participant)
	clients := clientSnapshot(state)
	b.mu.Unlock()

	broadcast(clients, map[string]interface{}{
		"type":    types.FrameTypeUserJoined,
		"user_id": userID,
	}, userID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"participant": participant})
}

func (b *Backend) leave(w http.ResponseWriter, state *sessionState, userID string) {
	b.mu.Lock()
	for _, p := range state.participants {
		if p.UserID == userID {
			p.IsActive = false
		}
	}
	clients := clientSnapshot(state)
	b.mu.Unlock()

	broadcast(clients, map[string]interface{}{
		"type":    types.FrameTypeUserLeft,
		"user_id": userID,
	}, userID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "left"})
}

func (b *Backend) end(w http.ResponseWriter, state *sessionState, userID string) {
	b.mu.Lock()
	if state.session.CreatedBy != userID {
		b.mu.Unlock()
		http.Error(w, `{"error":"only the creator can end a session"}`, http.StatusForbidden)
		return
	}
	state.session.Status = types.SessionStatusEnded
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ended"})
}

func (b *Backend) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.authenticate(w, r); !ok {
		return
	}
	var req struct {
		Text           string `json:"text"`
		TargetLanguage string `json:"target_language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"translated_text": fmt.Sprintf("[%s] %s", req.TargetLanguage, req.Text),
	})
}

func (b *Backend) handleImprove(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.authenticate(w, r); !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	if b.improved >= b.limit {
		payload := map[string]interface{}{"used_count": b.improved, "limit": b.limit}
		b.mu.Unlock()
		writeJSON(w, http.StatusPaymentRequired, payload)
		return
	}
	b.improved++
	used, limit := b.improved, b.limit
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"improved_text": strings.ToUpper(req.Text[:1]) + req.Text[1:],
		"used_count":    used,
		"limit":         limit,
	})
}

// handleWebSocket upgrades, registers the client with its session, and
// fans frames out. Canvas operation frames go to everyone except the
// sender; the sender already applied them locally.
func (b *Backend) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := b.authenticate(w, r)
	if !ok {
		return
	}
	sessionID := r.URL.Query().Get("session_id")

	b.mu.Lock()
	state, exists := b.sessions[sessionID]
	b.mu.Unlock()
	if !exists {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &wsClient{userID: userID, conn: conn}

	b.mu.Lock()
	state.clients[client] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(state.clients, client)
		b.mu.Unlock()
		conn.Close()
	}()

	conn.SetPingHandler(func(data string) error {
		client.writeMu.Lock()
		defer client.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		b.routeFrame(state, client, data)
	}
}

func (b *Backend) routeFrame(state *sessionState, sender *wsClient, data []byte) {
	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Printf("[FakeBackend] Dropping malformed frame: %v", err)
		return
	}

	frameType, _ := frame["type"].(string)
	switch frameType {
	case types.FrameTypeCanvasOperation:
		b.storeOperationFrame(state, sender, data)
		b.mu.Lock()
		clients := clientSnapshot(state)
		b.mu.Unlock()
		broadcast(clients, frame, sender.userID)
	case types.FrameTypeSessionMessage:
		content, _ := frame["content"].(string)
		b.storeMessage(state, sender.userID, content, types.MessageTypeText)
	}
}

func (b *Backend) storeOperationFrame(state *sessionState, sender *wsClient, data []byte) {
	var op struct {
		ID            string `json:"id"`
		OperationType string `json:"operation_type"`
		Seq           int64  `json:"seq"`
		Data          struct {
			Element *types.TextElement `json:"element"`
			Action  string             `json:"action"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return
	}

	b.mu.Lock()
	state.operations = append(state.operations, &types.CanvasOperation{
		ID:        op.ID,
		SessionID: state.session.ID,
		UserID:    sender.userID,
		Type:      op.OperationType,
		Action:    op.Data.Action,
		Element:   op.Data.Element,
		Seq:       op.Seq,
		Timestamp: time.Now().UTC(),
	})
	b.mu.Unlock()
}

func clientSnapshot(state *sessionState) []*wsClient {
	clients := make([]*wsClient, 0, len(state.clients))
	for client := range state.clients {
		clients = append(clients, client)
	}
	return clients
}

// broadcast sends a frame to every client except skipUserID. An empty
// skipUserID sends to everyone, which is how chat echoes back to its
// sender.
func broadcast(clients []*wsClient, frame interface{}, skipUserID string) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	for _, client := range clients {
		if skipUserID != "" && client.userID == skipUserID {
			continue
		}
		client.writeMu.Lock()
		client.conn.WriteMessage(websocket.TextMessage, data)
		client.writeMu.Unlock()
	}
}

func (b *Backend) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		http.Error(w, `{"error":"missing token"}`, http.StatusUnauthorized)
		return "", false
	}
	userID, err := UserIDFromToken(token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
