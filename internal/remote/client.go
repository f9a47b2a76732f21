// Package remote is the HTTP client for the Carolina server. It backs the
// session manager and relays chat requests.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/carolina/internal/agent"
	"github.com/ashureev/carolina/internal/domain"
)

var (
	// ErrStatus matches any non-2xx response.
	ErrStatus = errors.New("unexpected status")
	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("not found")
)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.StatusCode)
}

// Unwrap lets errors.Is match ErrNotFound for 404s and ErrStatus otherwise.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrStatus
}

const maxErrorBody = 4 << 10

// Client talks to the server's JSON API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the server at baseURL. An empty token sends no
// Authorization header.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}
	c := &Client{
		base:  u,
		token: token,
		http:  &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server address.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Token returns the bearer token.
func (c *Client) Token() string {
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	e := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		e.Message = payload.Error
	} else {
		e.Message = strings.TrimSpace(string(data))
	}
	return e
}

func sessionPath(id string, rest ...string) string {
	return "/api/sessions/" + url.PathEscape(id) + strings.Join(rest, "")
}

// ListSessions returns the principal's sessions, most recently updated first.
func (c *Client) ListSessions(ctx context.Context) ([]*domain.ChatSession, error) {
	var out []*domain.ChatSession
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns a session's messages in creation order.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error) {
	var out []*domain.ChatMessage
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/messages"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSession creates a session. Empty fields take server defaults.
func (c *Client) CreateSession(ctx context.Context, title, emoji string) (*domain.ChatSession, error) {
	in := map[string]string{}
	if title != "" {
		in["title"] = title
	}
	if emoji != "" {
		in["emoji"] = emoji
	}
	var out domain.ChatSession
	if err := c.do(ctx, http.MethodPost, "/api/sessions", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSession applies a partial title/emoji update.
func (c *Client) UpdateSession(ctx context.Context, sessionID string, patch domain.SessionPatch) (*domain.ChatSession, error) {
	var out domain.ChatSession
	if err := c.do(ctx, http.MethodPatch, sessionPath(sessionID), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession removes a session and its messages.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(sessionID), nil, nil)
}

// InsertMessage appends a message to its session.
func (c *Client) InsertMessage(ctx context.Context, msg domain.NewMessage) (*domain.ChatMessage, error) {
	var out domain.ChatMessage
	if err := c.do(ctx, http.MethodPost, sessionPath(msg.SessionID, "/messages"), msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TouchSession bumps a session's updatedAt.
func (c *Client) TouchSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, sessionPath(sessionID, "/touch"), nil, nil)
}

// Respond relays a chat request to the server's AI collaborator.
func (c *Client) Respond(ctx context.Context, req agent.Request) (*agent.Reply, error) {
	var out agent.Reply
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HealthStatus is the server's health report.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health reports whether the server and its database are reachable. A
// degraded server answers 503, which surfaces as a *StatusError.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
