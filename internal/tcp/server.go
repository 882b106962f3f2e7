// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package tcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/transport"
	"github.com/holomush/sessiongate/pkg/errutil"
)

// Defaults applied by NewServer.
const (
	DefaultWorkers      = 256
	DefaultQueueSize    = 64
	DefaultMaxLineBytes = 64 * 1024
	DefaultWriteTimeout = 10 * time.Second
)

const releaseTimeout = 5 * time.Second

// Dispatcher routes a decoded inbound message. transport.Router implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn transport.ConnID, name string, payload transport.Payload) error
}

// Config configures a Server.
type Config struct {
	Addr string
	// Workers bounds how many messages are handled at once across all
	// connections.
	Workers int
	// QueueSize is the per-connection outbound buffer, in messages.
	QueueSize    int
	MaxLineBytes int
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server accepts TCP connections and frames them as JSON lines.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	logger     *slog.Logger

	mu       sync.RWMutex
	listener net.Listener
	conns    map[transport.ConnID]*conn
	closing  bool

	nextID atomic.Uint64
	wg     sync.WaitGroup
}

var _ transport.Sender = (*Server)(nil)

// NewServer creates a server. It does not listen until Run.
func NewServer(cfg Config, dispatcher Dispatcher) (*Server, error) {
	if dispatcher == nil {
		return nil, oops.In("tcp").Code("CONFIG_INVALID").Errorf("dispatcher is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
		conns:      make(map[transport.ConnID]*conn),
	}, nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Len returns the number of open connections.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Run listens and serves until ctx is cancelled. lc is told about every
// connection before its first message and after it is gone. Run returns
// once every connection has been cleaned up.
func (s *Server) Run(ctx context.Context, lc transport.Lifecycle) error {
	pool, err := ants.NewPool(s.cfg.Workers,
		ants.WithPanicHandler(func(v any) {
			s.logger.Error("message worker panicked", "panic", v)
		}),
	)
	if err != nil {
		return oops.In("tcp").Code("POOL_FAILED").Wrap(err)
	}
	defer func() {
		if err := pool.ReleaseTimeout(releaseTimeout); err != nil {
			s.logger.Warn("worker pool did not drain", "error", err)
		}
	}()

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return oops.In("tcp").Code("LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("tcp server started", "addr", listener.Addr().String())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("error closing listener", "error", err)
		}
	}()

	for {
		nc, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(ctx, pool, nc, lc)
		}()
	}

	s.closeAll()
	s.wg.Wait()
	s.logger.Info("tcp server stopped")
	return nil
}

// Send queues a message for conn.
func (s *Server) Send(id transport.ConnID, name string, payload any) error {
	c, ok := s.lookup(id)
	if !ok {
		return oops.In("tcp").Code("CONN_NOT_FOUND").With("conn_id", id).Errorf("unknown connection")
	}
	frame, err := Encode(name, payload)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

// Close flushes conn's queue and closes it. Unknown connections are ignored.
func (s *Server) Close(id transport.ConnID) error {
	if c, ok := s.lookup(id); ok {
		c.shutdown(nil)
	}
	return nil
}

func (s *Server) lookup(id transport.ConnID) (*conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for _, c := range s.conns {
		c.shutdown(nil)
	}
}

func (s *Server) serve(ctx context.Context, pool *ants.Pool, nc net.Conn, lc transport.Lifecycle) {
	c := newConn(transport.ConnID(s.nextID.Add(1)), nc, s.cfg.QueueSize)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = nc.Close()
		return
	}
	s.conns[c.id] = c
	s.mu.Unlock()
	ConnectionsTotal.Inc()
	ConnectionsActive.Inc()

	s.logger.Debug("connection accepted", "conn_id", c.id, "remote", nc.RemoteAddr().String())

	go c.writeLoop(s.cfg.WriteTimeout, s.logger)

	lc.Connected(ctx, c.id)
	readErr := s.readLoop(ctx, pool, c)

	c.shutdown(nil)
	<-c.done

	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	ConnectionsActive.Dec()

	cause := c.disconnectCause(readErr)
	if cause != nil && !errors.Is(cause, io.EOF) {
		s.logger.Debug("connection read error", "conn_id", c.id, "error", cause)
	}
	lc.Disconnected(context.WithoutCancel(ctx), c.id, cause)
}

// readLoop handles lines in order until the connection ends and returns
// the error that ended it.
func (s *Server) readLoop(ctx context.Context, pool *ants.Pool, c *conn) error {
	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 0, 4096), s.cfg.MaxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if c.isClosed() {
			break
		}

		name, payload, err := Decode(line)
		if err != nil {
			recordMessage("", outcomeMalformed)
			s.logger.Debug("dropping malformed frame", "conn_id", c.id, "error", err)
			continue
		}

		done := make(chan struct{})
		if err := pool.Submit(func() {
			defer close(done)
			s.dispatch(ctx, c.id, name, payload)
		}); err != nil {
			return oops.In("tcp").Code("POOL_FAILED").With("conn_id", c.id).Wrap(err)
		}
		<-done
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (s *Server) dispatch(ctx context.Context, id transport.ConnID, name string, payload transport.Payload) {
	err := s.dispatcher.Dispatch(ctx, id, name, payload)
	if err == nil {
		recordMessage(name, outcomeHandled)
		return
	}

	switch errorCode(err) {
	case "UNKNOWN_MESSAGE":
		recordMessage("", outcomeUnknown)
		s.logger.Debug("unknown message", "conn_id", id, "name", name)
	case "HANDLER_PANIC":
		recordMessage(name, outcomeFailed)
		errutil.LogErrorContext(ctx, s.logger, "message handler panicked", err, "conn_id", id, "name", name)
	default:
		recordMessage(name, outcomeFailed)
		s.logger.DebugContext(ctx, "message handler failed", "conn_id", id, "name", name, "error", err)
	}
}

func errorCode(err error) any {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Code()
	}
	return nil
}
