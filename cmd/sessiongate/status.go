// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/sessiongate/internal/control"
	"github.com/holomush/sessiongate/internal/xdg"
)

const controlTimeout = 5 * time.Second

// socketFlag is shared by the commands that talk to a running server.
type socketFlag struct {
	path string
}

func (f *socketFlag) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "socket", "", "control socket path (default: control-socket from config, then XDG_RUNTIME_DIR/sessiongate/control.sock)")
}

// client resolves the socket path from the flag, the config file and
// finally the XDG default.
func (f *socketFlag) client() (*control.Client, error) {
	path := f.path
	if path == "" {
		cfg, err := loadConfig(nil)
		if err != nil {
			return nil, err
		}
		path = cfg.ControlSocket
	}
	if path == "" {
		var err error
		if path, err = xdg.ControlSocket(); err != nil {
			return nil, err
		}
	}
	return control.NewClient(path), nil
}

// ProcessStatus holds what status reports about a server.
type ProcessStatus struct {
	Running       bool   `json:"running"`
	Health        string `json:"health,omitempty"`
	PID           int    `json:"pid,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds,omitempty"`
	Version       string `json:"version,omitempty"`
	Sessions      int    `json:"sessions"`
	Accounts      int    `json:"accounts"`
	Pending       int    `json:"pending"`
	Error         string `json:"error,omitempty"`
}

type statusConfig struct {
	socketFlag
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the running sessiongate server",
		Long:  `Show health, uptime and session counts of the running server via its control socket.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cfg.register(cmd)
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	client, err := cfg.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), controlTimeout)
	defer cancel()

	status := queryStatus(ctx, client)

	if cfg.jsonOutput {
		out, err := formatStatusJSON(status)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(out)
		return nil
	}
	cmd.Println(formatStatusTable(status))
	return nil
}

// queryStatus never fails; an unreachable server is reported as stopped.
func queryStatus(ctx context.Context, client *control.Client) ProcessStatus {
	var status ProcessStatus

	health, err := client.Health(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Running = true
	status.Health = health.Status

	resp, err := client.Status(ctx)
	if err != nil {
		// Health answered, so the server is still considered running.
		return status
	}
	status.Running = resp.Running
	status.PID = resp.PID
	status.UptimeSeconds = resp.UptimeSeconds
	status.Version = resp.Version
	status.Sessions = resp.Sessions
	status.Accounts = resp.Accounts
	status.Pending = resp.Pending
	return status
}

func formatStatusTable(status ProcessStatus) string {
	if !status.Running {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		return "stopped: " + reason
	}

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATUS\tHEALTH\tPID\tUPTIME\tSESSIONS\tACCOUNTS\tPENDING")
	_, _ = fmt.Fprintf(w, "running\t%s\t%d\t%s\t%d\t%d\t%d\n",
		status.Health, status.PID, formatUptime(status.UptimeSeconds),
		status.Sessions, status.Accounts, status.Pending)
	_ = w.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

func formatStatusJSON(status ProcessStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

type sessionsConfig struct {
	socketFlag
	jsonOutput bool
}

// NewSessionsCmd creates the sessions subcommand.
func NewSessionsCmd() *cobra.Command {
	cfg := &sessionsConfig{}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List active sessions",
		Long:  `List every active session of the running server, oldest first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cfg.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), controlTimeout)
			defer cancel()

			sessions, err := client.Sessions(ctx)
			if err != nil {
				return err
			}
			if cfg.jsonOutput {
				data, err := json.MarshalIndent(sessions, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal sessions: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}
			cmd.Println(formatSessionsTable(sessions, time.Now()))
			return nil
		},
	}

	cfg.register(cmd)
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output sessions as JSON")
	return cmd
}

func formatSessionsTable(sessions []control.SessionInfo, now time.Time) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "CONN\tSESSION\tACCOUNT\tAGE")
	for _, s := range sessions {
		age := int64(now.Sub(s.StartedAt).Seconds())
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ConnID, s.SessionID, s.AccountID, formatUptime(age))
	}
	_ = w.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

type kickConfig struct {
	socketFlag
	message string
}

// NewKickCmd creates the kick subcommand.
func NewKickCmd() *cobra.Command {
	cfg := &kickConfig{}

	cmd := &cobra.Command{
		Use:   "kick ACCOUNT_ID",
		Short: "End every session of an account",
		Long: `Kick every session logged in to ACCOUNT_ID. The clients receive a
Kicked message carrying the given reason before they are logged out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), controlTimeout)
			defer cancel()

			kicked, err := client.Kick(ctx, args[0], cfg.message)
			if err != nil {
				return err
			}
			cmd.Printf("kicked %d session(s)\n", kicked)
			return nil
		},
	}

	cfg.register(cmd)
	cmd.Flags().StringVar(&cfg.message, "message", "", "reason shown to the kicked clients")
	return cmd
}
