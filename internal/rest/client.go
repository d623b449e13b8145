package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// Client is the typed HTTP client for the collaborator session API. No
// business logic lives here, only HTTP handling and JSON serialization;
// status-code mapping to sentinel errors is the one contract the room
// controller depends on.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ interfaces.SessionAPI = (*Client)(nil)

// NewClient creates a session API client. The access token is attached to
// every request; the engine assumes it was issued upstream.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
	}
}

// Request/response types for JSON serialization.
type participantsResponse struct {
	Participants []*types.Participant `json:"participants"`
}

type messagesResponse struct {
	Messages []*types.SessionMessage `json:"messages"`
}

type operationsResponse struct {
	Operations []*types.CanvasOperation `json:"operations"`
}

type joinResponse struct {
	Participant *types.Participant `json:"participant"`
}

type postMessageRequest struct {
	MessageText string `json:"message_text"`
	MessageType string `json:"message_type"`
}

type postMessageResponse struct {
	Message *types.SessionMessage `json:"message"`
}

type postOperationRequest struct {
	OperationType string                 `json:"operation_type"`
	OperationData *types.CanvasOperation `json:"operation_data"`
}

// GetParticipants returns the participant list for a session.
func (c *Client) GetParticipants(ctx context.Context, sessionID string) ([]*types.Participant, error) {
	var resp participantsResponse
	if err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID+"/participants", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

// GetMessages returns the historical message log for a session. Callers
// tolerate ErrForbidden and fall back to live delivery only.
func (c *Client) GetMessages(ctx context.Context, sessionID string) ([]*types.SessionMessage, error) {
	var resp messagesResponse
	if err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// JoinSession creates a participant record for the current user.
func (c *Client) JoinSession(ctx context.Context, sessionID string) (*types.Participant, error) {
	var resp joinResponse
	if err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/join", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Participant, nil
}

// LeaveSession flips the caller's presence flag off.
func (c *Client) LeaveSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/leave", struct{}{}, nil)
}

// EndSession transitions the session to ended.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/end", struct{}{}, nil)
}

// GetCanvasOperations returns the ordered operation log starting at the
// given sequence for whiteboard rehydration.
func (c *Client) GetCanvasOperations(ctx context.Context, sessionID string, since int64) ([]*types.CanvasOperation, error) {
	path := "/sessions/" + sessionID + "/canvas-operations?since=" + strconv.FormatInt(since, 10)
	var resp operationsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Operations, nil
}

// PostCanvasOperation persists one operation to the backend log.
func (c *Client) PostCanvasOperation(ctx context.Context, sessionID string, op *types.CanvasOperation) error {
	req := postOperationRequest{
		OperationType: op.Type,
		OperationData: op,
	}
	return c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/canvas-operations", req, nil)
}

// PostMessage is the REST fallback send used when no live channel is wired.
func (c *Client) PostMessage(ctx context.Context, sessionID, content, messageType string) (*types.SessionMessage, error) {
	req := postMessageRequest{
		MessageText: content,
		MessageType: messageType,
	}
	var resp postMessageResponse
	if err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/messages", req, &resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// do executes one request and decodes the response into out when non-nil.
// Status codes carry the session lifecycle contract: 410 ended, 404 not
// found, 403 forbidden.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("session API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		// Fall through to decode.
	case http.StatusForbidden:
		return interfaces.ErrForbidden
	case http.StatusNotFound:
		return interfaces.ErrSessionNotFound
	case http.StatusGone:
		return interfaces.ErrSessionEnded
	default:
		return fmt.Errorf("%w: status %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
