package client

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

	"github.com/shellbox/shellbox/pkg/types"
)

// Client is an HTTP client for the Shellbox API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Shellbox API client. Long-running calls (start
// with an image pull, exec with a generous timeout) are bounded by the
// request context rather than a client-wide deadline.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request with API key authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// decodeResponse checks the status and decodes the body into dest. dest
// may be nil for responses without a useful body.
func decodeResponse(resp *http.Response, wantStatus int, dest interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var apiBody struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		msg := string(raw)
		if json.Unmarshal(raw, &apiBody) == nil && apiBody.Error != "" {
			msg = apiBody.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreateSandbox registers a new sandbox, optionally starting it when
// cfg.Start is set.
func (c *Client) CreateSandbox(ctx context.Context, cfg types.SandboxConfig) (*types.Sandbox, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/sandboxes", cfg)
	if err != nil {
		return nil, err
	}
	var sb types.Sandbox
	if err := decodeResponse(resp, http.StatusCreated, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

// StartSandbox provisions the container and shell session for a created
// sandbox.
func (c *Client) StartSandbox(ctx context.Context, sandboxID string) (*types.Sandbox, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/sandboxes/%s/start", url.PathEscape(sandboxID)), nil)
	if err != nil {
		return nil, err
	}
	var sb types.Sandbox
	if err := decodeResponse(resp, http.StatusOK, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

// ListSandboxes lists all sandboxes.
func (c *Client) ListSandboxes(ctx context.Context) ([]types.Sandbox, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/sandboxes", nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Sandboxes []types.Sandbox `json:"sandboxes"`
	}
	if err := decodeResponse(resp, http.StatusOK, &body); err != nil {
		return nil, err
	}
	return body.Sandboxes, nil
}

// GetSandbox gets a sandbox by ID.
func (c *Client) GetSandbox(ctx context.Context, sandboxID string) (*types.Sandbox, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/sandboxes/%s", url.PathEscape(sandboxID)), nil)
	if err != nil {
		return nil, err
	}
	var sb types.Sandbox
	if err := decodeResponse(resp, http.StatusOK, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

// Exec runs a command in a running sandbox.
func (c *Client) Exec(ctx context.Context, sandboxID string, req types.ExecRequest) (*types.ExecResult, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/sandboxes/%s/exec", url.PathEscape(sandboxID)), req)
	if err != nil {
		return nil, err
	}
	var res types.ExecResult
	if err := decodeResponse(resp, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Trajectory fetches the recorded commands for a sandbox.
func (c *Client) Trajectory(ctx context.Context, sandboxID string) (*types.TrajectoryResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/sandboxes/%s/trajectory", url.PathEscape(sandboxID)), nil)
	if err != nil {
		return nil, err
	}
	var traj types.TrajectoryResponse
	if err := decodeResponse(resp, http.StatusOK, &traj); err != nil {
		return nil, err
	}
	return &traj, nil
}

// StopSandbox gracefully stops a sandbox.
func (c *Client) StopSandbox(ctx context.Context, sandboxID string) (*types.Sandbox, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/sandboxes/%s/stop", url.PathEscape(sandboxID)), nil)
	if err != nil {
		return nil, err
	}
	var sb types.Sandbox
	if err := decodeResponse(resp, http.StatusOK, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

// RemoveSandbox erases a terminal sandbox.
func (c *Client) RemoveSandbox(ctx context.Context, sandboxID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/sandboxes/%s", url.PathEscape(sandboxID)), nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, http.StatusNoContent, nil)
}

// CreatePTY opens an interactive terminal session in a running sandbox.
func (c *Client) CreatePTY(ctx context.Context, sandboxID string, req types.PTYCreateRequest) (*types.PTYSession, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/sandboxes/%s/pty", url.PathEscape(sandboxID)), req)
	if err != nil {
		return nil, err
	}
	var sess types.PTYSession
	if err := decodeResponse(resp, http.StatusCreated, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// KillPTY terminates a terminal session.
func (c *Client) KillPTY(ctx context.Context, sandboxID, sessionID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete,
		fmt.Sprintf("/sandboxes/%s/pty/%s", url.PathEscape(sandboxID), url.PathEscape(sessionID)), nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, http.StatusNoContent, nil)
}

// PTYWebSocketURL returns the ws:// URL for attaching to a terminal
// session, including the API key when one is configured.
func (c *Client) PTYWebSocketURL(sandboxID, sessionID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = fmt.Sprintf("/sandboxes/%s/pty/%s", sandboxID, sessionID)
	if c.apiKey != "" {
		q := u.Query()
		q.Set("api_key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// WaitHealthy polls /health until the server responds or the context ends.
func (c *Client) WaitHealthy(ctx context.Context) error {
	for {
		resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}
