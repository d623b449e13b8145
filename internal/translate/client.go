package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"roomsync/pkg/types"
)

// Client calls the platform's translation endpoints. Translations are
// cached per message and language so toggling a translation on and off
// never refetches it.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]string
}

// NewClient creates a translation client. A nil httpClient falls back
// to http.DefaultClient.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		cache:      make(map[string]string),
	}
}

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

// TranslateMessage returns the message content in the target language,
// serving repeat requests from the cache.
func (c *Client) TranslateMessage(ctx context.Context, msg *types.SessionMessage, targetLanguage string) (string, error) {
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyText
	}

	key := msg.ID + "|" + targetLanguage
	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	var resp translateResponse
	err := c.post(ctx, "/translate", translateRequest{Text: msg.Content, TargetLanguage: targetLanguage}, &resp)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[key] = resp.TranslatedText
	c.mu.Unlock()
	return resp.TranslatedText, nil
}

// Forget drops cached translations for a message.
func (c *Client) Forget(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.cache {
		if strings.HasPrefix(key, messageID+"|") {
			delete(c.cache, key)
		}
	}
}

// Improvement is the outcome of a draft-improvement request. When the
// user's plan is out of quota, UpgradeRequired is set and the counters
// say how much was used; ImprovedText is empty in that case.
type Improvement struct {
	ImprovedText    string
	UpgradeRequired bool
	UsedCount       int
	Limit           int
}

type improveRequest struct {
	Text string `json:"text"`
}

type improveResponse struct {
	ImprovedText string `json:"improved_text"`
	UsedCount    int    `json:"used_count"`
	Limit        int    `json:"limit"`
}

// ImproveDraft asks the backend to polish the user's own draft before
// sending. Quota exhaustion is an outcome, not an error.
func (c *Client) ImproveDraft(ctx context.Context, draft string) (*Improvement, error) {
	if strings.TrimSpace(draft) == "" {
		return nil, ErrEmptyText
	}

	body, err := json.Marshal(improveRequest{Text: draft})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages/improve", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp improveResponse
	switch httpResp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return nil, err
		}
		return &Improvement{ImprovedText: resp.ImprovedText, UsedCount: resp.UsedCount, Limit: resp.Limit}, nil
	case http.StatusPaymentRequired, http.StatusForbidden:
		// The quota payload rides on the rejection.
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return nil, err
		}
		return &Improvement{UpgradeRequired: true, UsedCount: resp.UsedCount, Limit: resp.Limit}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, httpResp.StatusCode)
	}
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
