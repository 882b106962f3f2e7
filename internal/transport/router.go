// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

import (
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/samber/oops"

	"github.com/holomush/sessiongate/pkg/errutil"
)

// Router maps message names to handlers. It implements Mux for
// registration and Dispatch for transports.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Handler
}

var _ Mux = (*Router)(nil)

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Handler)}
}

// Handle registers h under name. Names are unique.
func (r *Router) Handle(name string, h Handler) error {
	if name == "" {
		return oops.In("transport").Code("INVALID_ROUTE").Errorf("message name cannot be empty")
	}
	if h == nil {
		return oops.In("transport").Code("INVALID_ROUTE").With("name", name).Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[name]; exists {
		return oops.In("transport").Code("DUPLICATE_ROUTE").With("name", name).Errorf("message %q already registered", name)
	}
	r.routes[name] = h
	return nil
}

// Dispatch runs the handler registered for name. A panicking handler is
// reported as a HANDLER_PANIC error.
func (r *Router) Dispatch(ctx context.Context, conn ConnID, name string, payload Payload) error {
	r.mu.RLock()
	h, ok := r.routes[name]
	r.mu.RUnlock()

	if !ok {
		return oops.In("transport").Code("UNKNOWN_MESSAGE").
			With("name", name).
			With("conn_id", conn).
			Errorf("no handler for message %q", name)
	}

	//nolint:wrapcheck // handler errors already carry their own domain
	return errutil.Safely("HANDLER_PANIC", func() error {
		return h(ctx, conn, payload)
	})
}

// Names returns the registered message names, sorted.
func (r *Router) Names() []string {
	r.mu.RLock()
	names := lo.Keys(r.routes)
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}
