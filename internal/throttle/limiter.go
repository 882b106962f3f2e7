// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package throttle limits how fast each connection may send messages using
// a token bucket per connection.
package throttle

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/sessiongate/internal/transport"
)

// Defaults.
const (
	// DefaultBurst is how many messages a connection may send back to back.
	DefaultBurst = 20

	// DefaultRate is the sustained refill rate in messages per second.
	DefaultRate = 5.0

	// MinRate keeps the cooldown computation finite.
	MinRate = 0.1

	DefaultCleanupInterval = 5 * time.Minute
	DefaultMaxIdle         = time.Hour
)

// Config configures a Limiter.
type Config struct {
	// Burst defaults to DefaultBurst when zero or negative.
	Burst int
	// Rate defaults to DefaultRate when zero or negative.
	Rate float64
	// CleanupInterval is how often idle buckets are dropped.
	CleanupInterval time.Duration
	// MaxIdle is how long a bucket may go unused before cleanup drops it.
	MaxIdle time.Duration
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter tracks one token bucket per connection. It is safe for concurrent
// use. Close stops its cleanup goroutine.
type Limiter struct {
	mu      sync.Mutex
	buckets map[transport.ConnID]*bucket
	burst   int
	rate    float64
	maxIdle time.Duration
	now     func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewLimiter creates a limiter and starts its cleanup goroutine.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	rate = max(rate, MinRate)
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}

	l := &Limiter{
		buckets: make(map[transport.ConnID]*bucket),
		burst:   burst,
		rate:    rate,
		maxIdle: maxIdle,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	l.wg.Add(1)
	go l.cleanupLoop(interval)
	return l
}

// Allow takes one token for conn. When none is left it returns false and
// how long until the next token.
func (l *Limiter) Allow(conn transport.ConnID) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[conn]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastSeen: now}
		l.buckets[conn] = b
		trackedConnections.Set(float64(len(l.buckets)))
	}

	b.tokens = min(b.tokens+now.Sub(b.lastSeen).Seconds()*l.rate, float64(l.burst))
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, wait
}

// Forget drops conn's bucket.
func (l *Limiter) Forget(conn transport.ConnID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, conn)
	trackedConnections.Set(float64(len(l.buckets)))
}

// Len returns the number of tracked connections.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Cleanup drops buckets unused for longer than maxIdle.
func (l *Limiter) Cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.now().Add(-maxIdle)
	for conn, b := range l.buckets {
		if b.lastSeen.Before(threshold) {
			delete(l.buckets, conn)
		}
	}
	trackedConnections.Set(float64(len(l.buckets)))
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.Cleanup(l.maxIdle)
		}
	}
}

// Close stops the cleanup goroutine and waits for it.
func (l *Limiter) Close() {
	close(l.stop)
	l.wg.Wait()
}

var (
	trackedConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessiongate_throttle_connections",
		Help: "Connections with a live token bucket",
	})
	throttledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessiongate_throttled_messages_total",
		Help: "Inbound messages dropped by the per-connection rate limit",
	})
)

// RegisterMetrics registers the throttle collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(trackedConnections, throttledTotal)
}
