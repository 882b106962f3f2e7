// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package control is the operator interface of a running server: HTTP over
// a Unix socket for status, session listing, kicks and shutdown, and an
// optional gRPC health service.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/xdg"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Running       bool   `json:"running"`
	PID           int    `json:"pid"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Version       string `json:"version,omitempty"`
	Counts
}

// SessionsResponse is returned by GET /sessions.
type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// KickRequest is the body of POST /kick.
type KickRequest struct {
	AccountID string `json:"account_id"`
	Message   string `json:"message,omitempty"`
}

// KickResponse is returned by POST /kick.
type KickResponse struct {
	Kicked int `json:"kicked"`
}

// ShutdownResponse is returned by POST /shutdown.
type ShutdownResponse struct {
	Message string `json:"message"`
}

// ErrorResponse carries a failed request's code and message.
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ShutdownFunc is called once when shutdown is requested.
type ShutdownFunc func()

// Server runs HTTP over a Unix socket.
type Server struct {
	socketPath string
	version    string
	backend    Backend
	shutdown   ShutdownFunc
	logger     *slog.Logger
	startTime  time.Time

	listener     net.Listener
	httpServer   *http.Server
	running      atomic.Bool
	shutdownOnce atomic.Bool
}

// Options configure NewServer.
type Options struct {
	// SocketPath defaults to xdg.ControlSocket.
	SocketPath string
	Version    string
	Shutdown   ShutdownFunc
	Logger     *slog.Logger
}

// NewServer creates a control server over backend.
func NewServer(backend Backend, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		socketPath: opts.SocketPath,
		version:    opts.Version,
		backend:    backend,
		shutdown:   opts.Shutdown,
		logger:     logger,
		startTime:  time.Now(),
	}
}

// SocketPath returns the socket path in use.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Handler returns the HTTP routes, for mounting elsewhere or testing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("POST /kick", s.handleKick)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	return mux
}

// Start listens on the socket. A stale socket file is replaced.
func (s *Server) Start() error {
	if s.socketPath == "" {
		path, err := xdg.ControlSocket()
		if err != nil {
			return oops.In("control").Wrap(err)
		}
		s.socketPath = path
	}
	if err := xdg.EnsureDir(filepath.Dir(s.socketPath)); err != nil {
		return oops.In("control").Wrap(err)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return oops.In("control").Code("SOCKET_FAILED").With("path", s.socketPath).Wrap(err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return oops.In("control").Code("SOCKET_FAILED").With("path", s.socketPath).Wrap(err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return oops.In("control").Code("SOCKET_FAILED").With("path", s.socketPath).Wrap(err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running.Store(true)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control socket server error", "error", err)
		}
	}()
	s.logger.Info("control socket listening", "path", s.socketPath)
	return nil
}

// Stop shuts the server down and removes the socket file.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return oops.In("control").With("operation", "shutdown").Wrap(err)
		}
	}
	if s.socketPath != "" && s.listener != nil {
		if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove control socket file", "path", s.socketPath, "error", err)
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.write(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.write(w, http.StatusOK, StatusResponse{
		Running:       s.running.Load(),
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Version:       s.version,
		Counts:        s.backend.Counts(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.backend.Sessions()
	if sessions == nil {
		sessions = []SessionInfo{}
	}
	s.write(w, http.StatusOK, SessionsResponse{Sessions: sessions})
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	var req KickRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.write(w, http.StatusBadRequest, ErrorResponse{Code: "INVALID_REQUEST", Message: err.Error()})
		return
	}
	if req.AccountID == "" {
		s.write(w, http.StatusBadRequest, ErrorResponse{Code: "INVALID_REQUEST", Message: "account_id is required"})
		return
	}

	kicked, err := s.backend.Kick(r.Context(), req.AccountID, req.Message)
	if err != nil {
		code := ""
		if oopsErr, ok := oops.AsOops(err); ok {
			code, _ = oopsErr.Code().(string)
		}
		status := http.StatusInternalServerError
		if code == "INVALID_ACCOUNT_ID" {
			status = http.StatusBadRequest
		}
		s.write(w, status, ErrorResponse{Code: code, Message: err.Error()})
		return
	}
	s.logger.Info("kick requested via control socket", "account_id", req.AccountID, "kicked", kicked)
	s.write(w, http.StatusOK, KickResponse{Kicked: kicked})
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	s.write(w, http.StatusOK, ShutdownResponse{Message: "shutdown initiated"})
	if s.shutdown != nil && s.shutdownOnce.CompareAndSwap(false, true) {
		go s.shutdown()
	}
}

func (s *Server) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write control response", "error", err)
	}
}
