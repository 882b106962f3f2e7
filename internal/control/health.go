// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package control

import (
	"context"
	"log/slog"
	"net"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "sessiongate"

// HealthServer publishes the standard grpc.health.v1 service.
type HealthServer struct {
	health     *health.Server
	grpcServer *grpc.Server
	listener   net.Listener
	logger     *slog.Logger
}

// NewHealthServer creates a health server that reports NOT_SERVING until
// SetServing(true).
func NewHealthServer(logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{health: h, logger: logger}
}

// SetServing flips both the overall and the named service status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Start listens on addr. The returned channel receives the Serve error, or
// nil after Stop, exactly once.
func (s *HealthServer) Start(addr string) (<-chan error, error) {
	if s.listener != nil {
		return nil, oops.In("control").Code("ALREADY_RUNNING").Errorf("health server already running")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, oops.In("control").Code("LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener
	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	errCh := make(chan error, 1)
	go func() {
		err := s.grpcServer.Serve(listener)
		if err != nil {
			s.logger.Error("grpc health server error", "error", err)
		}
		errCh <- err
	}()
	s.logger.Info("grpc health server listening", "addr", listener.Addr().String())
	return errCh, nil
}

// Addr returns the bound address, or "" before Start.
func (s *HealthServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop marks everything NOT_SERVING and stops gracefully.
func (s *HealthServer) Stop(_ context.Context) {
	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}
