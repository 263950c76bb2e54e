// Package api is the HTTP client for the GuruChat backend: personas,
// sessions, stored messages and the streaming chat endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HeaderUserID carries the caller identity on every request.
const HeaderUserID = "X-User-ID"

const maxErrorBody = 4 * 1024

// StatusError is returned when the backend answers with a non-success status.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Body)
}

type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
	timeout    time.Duration
	retry      *RetryPolicy
	log        *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every call except the chat stream body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for the backend rooted at baseURL acting as userID.
func New(baseURL, userID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		httpClient: &http.Client{},
		timeout:    30 * time.Second,
		retry:      DefaultRetryPolicy(),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) UserID() string {
	return c.userID
}

// Characters lists the personas available for a new session.
func (c *Client) Characters(ctx context.Context) ([]Character, error) {
	var body []byte
	err := c.retry.Execute(ctx, func() error {
		var err error
		body, err = c.call(ctx, "list characters", http.MethodGet, "/characters/", c.userID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	chars, err := decodeList[Character](body, "characters")
	if err != nil {
		return nil, fmt.Errorf("parse characters: %w", err)
	}
	return chars, nil
}

// CreateSession opens a session for userID with the given personas.
func (c *Client) CreateSession(ctx context.Context, userID string, characterIDs []string) (Session, error) {
	body, err := c.call(ctx, "create session", http.MethodPost, "/sessions/", userID, createSessionRequest{
		UserID:       userID,
		CharacterIDs: characterIDs,
	})
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("parse session: %w", err)
	}
	return s, nil
}

// ListSessions returns every session owned by userID.
func (c *Client) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	var body []byte
	err := c.retry.Execute(ctx, func() error {
		var err error
		body, err = c.call(ctx, "list sessions", http.MethodGet, "/sessions/", userID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	sessions, err := decodeList[Session](body, "session_info")
	if err != nil {
		return nil, fmt.Errorf("parse sessions: %w", err)
	}
	return sessions, nil
}

// RenameSession sets the title of session id.
func (c *Client) RenameSession(ctx context.Context, id, title string) (Session, error) {
	body, err := c.call(ctx, "rename session", http.MethodPatch, "/sessions/"+url.PathEscape(id)+"/title", c.userID, renameRequest{Title: title})
	if err != nil {
		return Session{}, err
	}
	var s Session
	if len(bytes.TrimSpace(body)) == 0 {
		return Session{ID: id, Title: title}, nil
	}
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("parse session: %w", err)
	}
	return s, nil
}

// DeleteSession removes session id.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	_, err := c.call(ctx, "delete session", http.MethodDelete, "/sessions/"+url.PathEscape(id), c.userID, nil)
	return err
}

// Messages returns the stored transcript of session id, oldest first.
func (c *Client) Messages(ctx context.Context, id string) ([]StoredMessage, error) {
	var body []byte
	err := c.retry.Execute(ctx, func() error {
		var err error
		body, err = c.call(ctx, "list messages", http.MethodGet, "/sessions/"+url.PathEscape(id)+"/messages", c.userID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	msgs, err := decodeList[StoredMessage](body, "messages")
	if err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}
	return msgs, nil
}

// Chat posts a user message and returns the streaming response body. The
// caller must close it. Cancelling ctx aborts the stream.
func (c *Client) Chat(ctx context.Context, sessionID string, req ChatRequest) (io.ReadCloser, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/chat", c.userID, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Warn("chat request failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("chat: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		se := statusError("chat", resp)
		c.log.Warn("chat rejected", zap.String("session_id", sessionID), zap.Int("status", se.Code))
		return nil, se
	}
	c.log.Debug("chat stream opened", zap.String("session_id", sessionID))
	return resp.Body, nil
}

func (c *Client) call(ctx context.Context, op, method, path, userID string, in any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, userID, in)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("op", op), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := statusError(op, resp)
		c.log.Warn("request rejected", zap.String("op", op), zap.Int("status", se.Code))
		return nil, se
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	c.log.Debug("request done", zap.String("op", op), zap.Duration("took", time.Since(start)))
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, userID string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	return req, nil
}

func statusError(op string, resp *http.Response) *StatusError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}
