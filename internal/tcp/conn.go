// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package tcp

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/transport"
)

// ErrSlowConsumer is the disconnect cause of a connection whose outbound
// queue overflowed.
var ErrSlowConsumer = errors.New("outbound queue full")

// conn is one accepted link. Frames are written by a single writer
// goroutine that owns the net.Conn close.
type conn struct {
	id  transport.ConnID
	nc  net.Conn
	out chan []byte

	mu     sync.Mutex
	closed bool
	cause  error

	done chan struct{}
}

func newConn(id transport.ConnID, nc net.Conn, queue int) *conn {
	return &conn{
		id:   id,
		nc:   nc,
		out:  make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

// enqueue queues frame for the writer. A full queue drops the connection.
func (c *conn) enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return oops.In("tcp").Code("CONN_CLOSED").With("conn_id", c.id).Errorf("connection is closing")
	}
	select {
	case c.out <- frame:
		return nil
	default:
	}

	c.closeLocked(ErrSlowConsumer)
	_ = c.nc.Close()
	return oops.In("tcp").Code("SEND_QUEUE_FULL").With("conn_id", c.id).Wrap(ErrSlowConsumer)
}

// shutdown stops accepting frames. The writer flushes what is queued and
// closes the socket. It reports whether this call did the shutdown.
func (c *conn) shutdown(cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closeLocked(cause)
	return true
}

func (c *conn) closeLocked(cause error) {
	c.closed = true
	c.cause = cause
	close(c.out)
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// disconnectCause picks the error reported to the lifecycle: a local close
// reports its own cause (nil when requested through Close), otherwise the
// read error that ended the connection.
func (c *conn) disconnectCause(readErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.cause
	}
	return readErr
}

func (c *conn) writeLoop(timeout time.Duration, logger *slog.Logger) {
	defer close(c.done)
	defer func() {
		if err := c.nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Debug("error closing connection", "conn_id", c.id, "error", err)
		}
	}()

	for frame := range c.out {
		if timeout > 0 {
			if err := c.nc.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				logger.Debug("failed to set write deadline", "conn_id", c.id, "error", err)
			}
		}
		if _, err := c.nc.Write(frame); err != nil {
			logger.Debug("failed to send message to client", "conn_id", c.id, "error", err)
			_ = c.nc.Close()
			// Drain until the reader side shuts the queue down.
			for range c.out {
			}
			return
		}
	}
}
