// Package client talks to a running orchestrator daemon. It prefers the
// Unix socket and falls back to loopback TCP when no socket exists.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/agentoven/orchestrator/pkg/models"
)

var (
	ErrDaemonNotRunning = errors.New("daemon is not running")
	ErrAgentNotFound    = errors.New("agent not found")
)

// DefaultTimeout bounds a single request, including a full agent turn.
const DefaultTimeout = 300 * time.Second

// StatusError is a non-success response from the daemon.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client is a daemon API client.
type Client struct {
	http      *http.Client
	baseURL   string
	transport string
}

// New returns a client for the daemon at socketPath, or at tcpURL (e.g.
// "http://127.0.0.1:7862") when the socket does not exist.
func New(socketPath, tcpURL string) *Client {
	if fi, err := os.Stat(socketPath); socketPath != "" && err == nil && fi.Mode()&os.ModeSocket != 0 {
		return &Client{
			http: &http.Client{
				Timeout: DefaultTimeout,
				Transport: &http.Transport{
					DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
						var d net.Dialer
						return d.DialContext(ctx, "unix", socketPath)
					},
				},
			},
			baseURL:   "http://unix",
			transport: "unix",
		}
	}
	return &Client{
		http:      &http.Client{Timeout: DefaultTimeout},
		baseURL:   tcpURL,
		transport: "tcp",
	}
}

// Transport reports "unix" or "tcp".
func (c *Client) Transport() string { return c.transport }

// ── Agents ───────────────────────────────────────────────────

func (c *Client) Spawn(ctx context.Context, cfg models.AgentConfig) (models.AgentInfo, error) {
	var info models.AgentInfo
	err := c.do(ctx, http.MethodPost, "/agents", cfg, &info)
	return info, err
}

func (c *Client) List(ctx context.Context, filter models.AgentFilter) ([]models.AgentInfo, error) {
	q := url.Values{}
	if filter.State != "" {
		q.Set("state", string(filter.State))
	}
	if filter.Provider != "" {
		q.Set("provider", filter.Provider)
	}
	path := "/agents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var infos []models.AgentInfo
	err := c.do(ctx, http.MethodGet, path, nil, &infos)
	return infos, err
}

func (c *Client) Get(ctx context.Context, name string) (models.AgentInfo, error) {
	var info models.AgentInfo
	err := c.do(ctx, http.MethodGet, "/agents/"+url.PathEscape(name), nil, &info)
	return info, err
}

func (c *Client) Send(ctx context.Context, name, content string) ([]models.Message, error) {
	var out models.MessagesResponse
	err := c.do(ctx, http.MethodPost, "/agents/"+url.PathEscape(name)+"/message", models.MessageRequest{Content: content}, &out)
	return out.Messages, err
}

func (c *Client) Task(ctx context.Context, cfg models.AgentConfig, prompt string) ([]models.Message, error) {
	var out models.MessagesResponse
	req := models.TaskRequest{AgentConfig: cfg, Prompt: prompt}
	err := c.do(ctx, http.MethodPost, "/agents/"+url.PathEscape(cfg.Name)+"/task", req, &out)
	return out.Messages, err
}

func (c *Client) History(ctx context.Context, name string, limit int) ([]models.Message, error) {
	path := "/agents/" + url.PathEscape(name) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out models.MessagesResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Messages, err
}

func (c *Client) Shutdown(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/agents/"+url.PathEscape(name), nil, nil)
}

func (c *Client) ShutdownAll(ctx context.Context) (models.ShutdownReport, error) {
	var report models.ShutdownReport
	err := c.do(ctx, http.MethodDelete, "/agents", nil, &report)
	return report, err
}

// ── Daemon ───────────────────────────────────────────────────

func (c *Client) Health(ctx context.Context) (models.HealthResponse, error) {
	var h models.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

func (c *Client) Providers(ctx context.Context) ([]string, error) {
	var out struct {
		Providers []string `json:"providers"`
	}
	err := c.do(ctx, http.MethodGet, "/providers", nil, &out)
	return out.Providers, err
}

// StopDaemon asks the daemon to shut down gracefully.
func (c *Client) StopDaemon(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/shutdown", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT) {
			return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := errorMessage(resp.Body)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrAgentNotFound, msg)
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 64*1024))
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return string(bytes.TrimSpace(raw))
}
