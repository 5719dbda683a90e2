// Package sdk provides typed access to the scoreboard HTTP + WebSocket API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the scoreboard HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// ApplyScore submits one token-authorized score update and returns the
// resulting score and rank movement.
func (c *Client) ApplyScore(ctx context.Context, actorID, action string, delta int64, token string) (ApplyResult, error) {
	if strings.TrimSpace(actorID) == "" {
		return ApplyResult{}, ErrEmptyActorID
	}
	body, err := json.Marshal(map[string]any{
		"actor_id": actorID,
		"action":   action,
		"delta":    delta,
		"token":    token,
	})
	if err != nil {
		return ApplyResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scores", bytes.NewReader(body))
	if err != nil {
		return ApplyResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ApplyResult{}, err
	}
	defer resp.Body.Close()

	var res ApplyResult
	if err := decodeJSON(resp, &res); err != nil {
		return ApplyResult{}, err
	}
	return res, nil
}

// Top fetches the top of the leaderboard.
func (c *Client) Top(ctx context.Context, limit int) (Snapshot, error) {
	u := fmt.Sprintf("%s/leaderboard/top?limit=%d", c.baseURL, limit)
	var snap Snapshot
	if err := c.get(ctx, u, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Position fetches one actor's rank and score.
func (c *Client) Position(ctx context.Context, actorID string) (Position, error) {
	if strings.TrimSpace(actorID) == "" {
		return Position{}, ErrEmptyActorID
	}
	u := fmt.Sprintf("%s/leaderboard/position/%s", c.baseURL, url.PathEscape(actorID))
	var pos Position
	if err := c.get(ctx, u, &pos); err != nil {
		return Position{}, err
	}
	return pos, nil
}

// Around fetches the leaderboard neighborhood of one actor.
func (c *Client) Around(ctx context.Context, actorID string, radius int) ([]Entry, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, ErrEmptyActorID
	}
	u := fmt.Sprintf("%s/leaderboard/around/%s?radius=%d", c.baseURL, url.PathEscape(actorID), radius)
	var body struct {
		Entries []Entry `json:"entries"`
	}
	if err := c.get(ctx, u, &body); err != nil {
		return nil, err
	}
	return body.Entries, nil
}

// Stats fetches board-wide aggregates.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := c.get(ctx, c.baseURL+"/leaderboard/stats", &st); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Health probes /healthz.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	if err := c.get(ctx, c.baseURL+"/healthz", &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits events. A
// non-empty actorID scopes the stream to that actor's personal events plus
// leaderboard changes. The returned channel closes when ctx is done or the
// connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, actorID string) (<-chan Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	wsURL := c.wsURL
	if actorID != "" {
		wsURL += "?actor=" + url.QueryEscape(actorID)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 32)
	done := make(chan struct{})

	// ReadJSON blocks; closing the connection on ctx.Done unblocks the
	// read loop instead of leaving it parked on an idle stream.
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	go func() {
		defer close(out)
		defer close(done)
		for {
			var evt Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

func (c *Client) get(ctx context.Context, u string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
