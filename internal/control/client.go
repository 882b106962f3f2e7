// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"
)

// Client talks to a Server over its Unix socket.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient creates a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		socketPath: socketPath,
		http:       &http.Client{Transport: transport, Timeout: 10 * time.Second},
	}
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	return resp, c.do(ctx, http.MethodGet, "/health", nil, &resp)
}

// Status calls GET /status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	return resp, c.do(ctx, http.MethodGet, "/status", nil, &resp)
}

// Sessions calls GET /sessions.
func (c *Client) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var resp SessionsResponse
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Kick calls POST /kick and returns how many sessions ended.
func (c *Client) Kick(ctx context.Context, accountID, message string) (int, error) {
	var resp KickResponse
	err := c.do(ctx, http.MethodPost, "/kick", KickRequest{AccountID: accountID, Message: message}, &resp)
	return resp.Kicked, err
}

// Shutdown calls POST /shutdown.
func (c *Client) Shutdown(ctx context.Context) (ShutdownResponse, error) {
	var resp ShutdownResponse
	return resp, c.do(ctx, http.MethodPost, "/shutdown", nil, &resp)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return oops.In("control").Code("CONTROL_REQUEST_FAILED").Wrap(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	// The host is ignored by the Unix dialer.
	req, err := http.NewRequestWithContext(ctx, method, "http://sessiongate"+path, reader)
	if err != nil {
		return oops.In("control").Code("CONTROL_REQUEST_FAILED").Wrap(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return oops.In("control").Code("CONTROL_UNREACHABLE").
			With("socket", c.socketPath).
			Hint("is the server running?").
			Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Message == "" {
			e.Message = resp.Status
		}
		return oops.In("control").Code("CONTROL_REQUEST_FAILED").
			With("path", path).
			With("status", resp.StatusCode).
			With("remote_code", e.Code).
			Errorf("%s", e.Message)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.In("control").Code("CONTROL_REQUEST_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
