package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrDaemonUnreachable is returned when no daemon answers at the base URL.
var ErrDaemonUnreachable = errors.New("daemon unreachable")

// Client talks to a running daemon.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient targets the daemon listening on bind (host:port or URL).
func NewClient(bind, token string) *Client {
	base := strings.TrimSpace(bind)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Health reports whether the daemon answers.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil, nil)
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var out DaemonStatus
	if err := c.get(ctx, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sessions lists open preview sessions.
func (c *Client) Sessions(ctx context.Context) ([]SessionView, error) {
	var out SessionListResponse
	if err := c.get(ctx, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Exports lists export history, newest first.
func (c *Client) Exports(ctx context.Context, sessionID string, states []string, limit int) ([]ExportItem, error) {
	query := url.Values{}
	if sessionID != "" {
		query.Set("session", sessionID)
	}
	for _, state := range states {
		query.Add("state", state)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out ExportListResponse
	if err := c.get(ctx, "/api/exports", query, &out); err != nil {
		return nil, err
	}
	return out.Exports, nil
}

// Logs fetches log events after since. With tail set and since zero the most
// recent limit events are returned instead.
func (c *Client) Logs(ctx context.Context, since uint64, limit int, tail bool, component string) (*LogStreamResponse, error) {
	query := url.Values{}
	if since > 0 {
		query.Set("since", strconv.FormatUint(since, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if tail {
		query.Set("tail", "1")
	}
	if component != "" {
		query.Set("component", component)
	}
	var out LogStreamResponse
	if err := c.get(ctx, "/api/logs", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
