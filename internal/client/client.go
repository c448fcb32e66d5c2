// Package client implements the HTTP contract of the assistant server. The
// server owns NLU, intent scoring, and history storage; this client only
// moves requests and responses.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yunseo-dev/esmchat/internal/protocol"
)

// Client talks to the assistant server. The base URL can be swapped at
// runtime when the config file is reloaded.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	http    *http.Client
}

// New creates a client. Streamed responses are not subject to the timeout;
// only the non-streaming endpoints use it (a stalled stream is terminated by
// explicit user cancellation, not by the transport).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBaseURL replaces the server address, e.g. after a config reload.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.mu.Unlock()
}

func (c *Client) endpoint(path string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL + path
}

// TurnRequest is the body of POST /chat/stream.
type TurnRequest struct {
	Message    string `json:"message"`
	SessionID  string `json:"sessionId"`
	ModuleType string `json:"moduleType,omitempty"`
}

// TurnResponse is either an intent-detection result (Intent set, no stream
// opened) or a line-delimited chat stream the caller must close.
type TurnResponse struct {
	Intent *protocol.IntentResult
	Stream io.ReadCloser
}

// OpenTurn sends one chat turn. The server answers with application/json when
// it classified the turn as an intent; anything else is treated as a chunked
// event stream.
func (c *Client) OpenTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/chat/stream"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build turn request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// The default client enforces a timeout that would kill long streams,
	// so turns go through a transport-only client and rely on ctx.
	resp, err := c.streamClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("turn request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("turn request returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if isJSON(resp.Header.Get("Content-Type")) {
		defer resp.Body.Close()
		var result protocol.IntentResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("failed to decode intent result: %w", err)
		}
		return &TurnResponse{Intent: &result}, nil
	}

	return &TurnResponse{Stream: resp.Body}, nil
}

// History fetches and normalizes the persisted turns of a session.
func (c *Client) History(ctx context.Context, sessionID string) ([]protocol.HistoryRow, error) {
	u := c.endpoint("/chat/history/" + url.PathEscape(sessionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build history request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request returned %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read history body: %w", err)
	}
	return protocol.DecodeHistory(data)
}

// GreetingRecord is the body of POST /chat/greeting.
type GreetingRecord struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	IntentID  string `json:"intentId"`
}

// SaveGreeting persists a synthesized greeting so a history reload returns it.
func (c *Client) SaveGreeting(ctx context.Context, rec GreetingRecord) error {
	return c.postJSON(ctx, "/chat/greeting", rec)
}

// MarkGreeted marks a detected intent as consumed so it is not re-surfaced on
// the next login. One-shot; the server treats repeats as no-ops.
func (c *Client) MarkGreeted(ctx context.Context, intentID string) error {
	return c.postJSON(ctx, "/agent/mark-greeted", map[string]string{"intentId": intentID})
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s", path, resp.Status)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// streamClient shares the transport but drops the overall timeout so a slow
// token stream is not cut off mid-answer.
func (c *Client) streamClient() *http.Client {
	return &http.Client{Transport: c.http.Transport}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}
