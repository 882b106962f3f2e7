// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/sessiongate/internal/control"
	"github.com/holomush/sessiongate/pkg/errutil"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m 0s"},
		{125, "2m 5s"},
		{3600, "1h 0m"},
		{7384, "2h 3m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.seconds))
	}
}

func TestFormatStatusTable(t *testing.T) {
	out := formatStatusTable(ProcessStatus{
		Running:       true,
		Health:        "healthy",
		PID:           42,
		UptimeSeconds: 125,
		Sessions:      3,
		Accounts:      2,
		Pending:       1,
	})
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, "2m 5s")

	assert.Equal(t, "stopped: not running", formatStatusTable(ProcessStatus{}))
	assert.Equal(t, "stopped: boom", formatStatusTable(ProcessStatus{Error: "boom"}))
}

func TestFormatStatusJSON(t *testing.T) {
	out, err := formatStatusJSON(ProcessStatus{Running: true, PID: 7, Sessions: 1})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, true, decoded["running"])
	assert.InDelta(t, 7, decoded["pid"], 0)
	assert.NotContains(t, decoded, "error")
}

func TestFormatSessionsTable(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := formatSessionsTable([]control.SessionInfo{
		{ConnID: 7, SessionID: "S1", AccountID: "A1", StartedAt: now.Add(-90 * time.Second)},
	}, now)

	assert.Contains(t, out, "CONN")
	assert.Contains(t, out, "A1")
	assert.Contains(t, out, "1m 30s")
}

func TestQueryStatus_Unreachable(t *testing.T) {
	client := control.NewClient(filepath.Join(t.TempDir(), "missing.sock"))

	status := queryStatus(context.Background(), client)
	assert.False(t, status.Running)
	assert.NotEmpty(t, status.Error)
}

func TestStatusCommand_AgainstRunningGateway(t *testing.T) {
	cfg := testConfig(t)
	startGateway(t, cfg)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"status", "--json", "--socket", cfg.ControlSocket})
	require.NoError(t, cmd.Execute())

	var status ProcessStatus
	require.NoError(t, json.Unmarshal(buf.Bytes(), &status))
	assert.True(t, status.Running)
	assert.Equal(t, "healthy", status.Health)
	assert.Equal(t, 0, status.Sessions)
}

func TestKickCommand_InvalidAccountID(t *testing.T) {
	cfg := testConfig(t)
	startGateway(t, cfg)

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"kick", "not-a-ulid", "--socket", cfg.ControlSocket})

	err := cmd.Execute()
	errutil.AssertErrorCode(t, err, "CONTROL_REQUEST_FAILED")
	errutil.AssertErrorContext(t, err, "remote_code", "INVALID_ACCOUNT_ID")
}

func TestSessionsCommand_Empty(t *testing.T) {
	cfg := testConfig(t)
	startGateway(t, cfg)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"sessions", "--socket", cfg.ControlSocket})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "CONN")
}
