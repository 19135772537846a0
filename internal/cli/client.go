// Package cli implements the jarvisctl operator commands.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/jarvis/internal/domain"
)

// Client talks to a running Jarvis server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Ask sends one utterance.
func (c *Client) Ask(ctx context.Context, sessionID, message string) (domain.Reply, error) {
	var reply domain.Reply
	err := c.do(ctx, http.MethodPost, "/ask", map[string]string{
		"message":    message,
		"session_id": sessionID,
	}, &reply)
	return reply, err
}

// StartSession creates a new session and returns its id.
func (c *Client) StartSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/start_session", nil, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// SaveMessage appends a message to a session.
func (c *Client) SaveMessage(ctx context.Context, sessionID, speaker, text string) error {
	return c.do(ctx, http.MethodPost, "/save_message", map[string]string{
		"session_id": sessionID,
		"speaker":    speaker,
		"text":       text,
	}, nil)
}

// History returns a session transcript.
func (c *Client) History(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s domain.Session
	if err := c.do(ctx, http.MethodGet, "/get_history/"+url.PathEscape(sessionID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Sessions lists recent sessions.
func (c *Client) Sessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	path := "/sessions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Sessions []domain.SessionSummary `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Signal raises a desktop signal: listen, stop, wake or sleep.
func (c *Client) Signal(ctx context.Context, name string) (string, error) {
	var path string
	switch name {
	case "listen":
		path = "/desktop/listen"
	case "stop":
		path = "/desktop/stop"
	case "wake":
		path = "/wake"
	case "sleep":
		path = "/sleep"
	default:
		return "", fmt.Errorf("unknown signal %q (want listen, stop, wake or sleep)", name)
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// Health returns the /health document. A degraded server is not an error.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusServiceUnavailable {
		return map[string]interface{}{"status": "degraded"}, nil
	}
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
