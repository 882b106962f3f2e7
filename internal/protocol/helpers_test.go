// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holomush/sessiongate/internal/protocol"
	"github.com/holomush/sessiongate/internal/transport"
)

const closeEvent = "<close>"

type event struct {
	Conn    transport.ConnID
	Name    string
	Payload any
}

// fakeTransport records sends and closes in the order they happen.
type fakeTransport struct {
	mu     sync.Mutex
	events []event
}

func (f *fakeTransport) Send(conn transport.ConnID, name string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{Conn: conn, Name: name, Payload: payload})
	return nil
}

func (f *fakeTransport) Close(conn transport.ConnID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{Conn: conn, Name: closeEvent})
	return nil
}

// names returns the message names conn received, closes included.
func (f *fakeTransport) names(conn transport.ConnID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, e := range f.events {
		if e.Conn == conn {
			names = append(names, e.Name)
		}
	}
	return names
}

// last returns the last message named name sent to conn.
func (f *fakeTransport) last(conn transport.ConnID, name string) (event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if e := f.events[i]; e.Conn == conn && e.Name == name {
			return e, true
		}
	}
	return event{}, false
}

// index returns the position of the first name event for conn, or -1.
func (f *fakeTransport) index(conn transport.ConnID, name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.events {
		if e.Conn == conn && e.Name == name {
			return i
		}
	}
	return -1
}

type testAccount struct {
	id       string
	password string
}

func (a testAccount) AccountID() string { return a.id }
func (a testAccount) Preview() any      { return map[string]string{"username": a.id} }

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginFailed struct {
	Reason string `json:"reason"`
}

type hookCall struct {
	Conn    transport.ConnID
	Account string
	Reason  *protocol.KickReason
}

type errorCall struct {
	Conn  transport.ConnID
	Stage protocol.Stage
	Err   error
}

// recorder collects hook invocations.
type recorder struct {
	mu          sync.Mutex
	starting    []hookCall
	terminating []hookCall
	errors      []errorCall
}

func (r *recorder) startingHook(_ context.Context, conn transport.ConnID, account protocol.Account[string]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starting = append(r.starting, hookCall{Conn: conn, Account: account.AccountID()})
	return nil
}

func (r *recorder) terminatingHook(_ context.Context, conn transport.ConnID, reason *protocol.KickReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminating = append(r.terminating, hookCall{Conn: conn, Reason: reason})
	return nil
}

func (r *recorder) errorHook(_ context.Context, conn transport.ConnID, stage protocol.Stage, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, errorCall{Conn: conn, Stage: stage, Err: err})
	return nil
}

func (r *recorder) startingCalls() []hookCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hookCall(nil), r.starting...)
}

func (r *recorder) terminatingCalls() []hookCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hookCall(nil), r.terminating...)
}

func (r *recorder) errorCalls() []errorCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]errorCall(nil), r.errors...)
}

var errLookup = errors.New("database unavailable")

// harness wires a server to a fake transport, a router and a recorder.
type harness struct {
	t         *testing.T
	srv       *protocol.Server[string]
	transport *fakeTransport
	router    *transport.Router
	hooks     *recorder
	accounts  map[string]testAccount
	lookupErr error
}

type harnessOption func(*protocol.Config[string])

func withPolicy(p protocol.DuplicatePolicy) harnessOption {
	return func(c *protocol.Config[string]) { c.Policy = p }
}

func withStarting(h protocol.StartingHook[string]) harnessOption {
	return func(c *protocol.Config[string]) { c.Hooks.Starting = append(c.Hooks.Starting, h) }
}

func withTerminating(h protocol.TerminatingHook) harnessOption {
	return func(c *protocol.Config[string]) { c.Hooks.Terminating = append(c.Hooks.Terminating, h) }
}

func withErrorHook(h protocol.ErrorHook) harnessOption {
	return func(c *protocol.Config[string]) { c.Hooks.Error = h }
}

func withTimeout(d time.Duration) harnessOption {
	return func(c *protocol.Config[string]) { c.LoginTimeout = d }
}

func withOnTimeout(fn protocol.TimeoutFunc) harnessOption {
	return func(c *protocol.Config[string]) { c.OnTimeout = fn }
}

func withTickInterval(d time.Duration) harnessOption {
	return func(c *protocol.Config[string]) { c.TickInterval = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		transport: &fakeTransport{},
		router:    transport.NewRouter(),
		hooks:     &recorder{},
		accounts: map[string]testAccount{
			"bob":   {id: "bob", password: "x"},
			"alice": {id: "alice", password: "wonderland"},
		},
	}

	cfg := protocol.Config[string]{
		Transport: h.transport,
		Accounts: protocol.AccountFinderFunc[string](func(_ context.Context, id string) (protocol.Account[string], error) {
			if h.lookupErr != nil {
				return nil, h.lookupErr
			}
			acct, ok := h.accounts[id]
			if !ok {
				return nil, nil
			}
			return acct, nil
		}),
		Policy: protocol.PolicyAllowAll,
		Hooks: protocol.Hooks[string]{
			Starting:    []protocol.StartingHook[string]{h.hooks.startingHook},
			Terminating: []protocol.TerminatingHook{h.hooks.terminatingHook},
			Error:       h.hooks.errorHook,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := protocol.NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Mount(h.router))
	require.NoError(t, protocol.HandleLogin(srv, h.router, "Sample", h.sampleLogin))
	h.srv = srv
	return h
}

func (h *harness) sampleLogin(_ context.Context, _ transport.ConnID, msg credentials) (protocol.LoginResult, error) {
	acct, ok := h.accounts[msg.Username]
	if !ok || acct.password != msg.Password {
		return protocol.Rejected{Payload: loginFailed{Reason: "invalid username or password"}}, nil
	}
	return protocol.Accepted[string]{Payload: acct.Preview(), AccountID: acct.id}, nil
}

func (h *harness) connect(conn transport.ConnID) {
	h.srv.Connected(context.Background(), conn)
}

func (h *harness) dispatch(conn transport.ConnID, name string, payload any) error {
	var body transport.Payload
	if payload != nil {
		body = transport.MustJSON(payload)
	}
	return h.router.Dispatch(context.Background(), conn, name, body)
}

func (h *harness) login(conn transport.ConnID, user, pass string) {
	h.t.Helper()
	require.NoError(h.t, h.dispatch(conn, "Login:Sample", credentials{Username: user, Password: pass}))
}

func (h *harness) connectAndLogin(conn transport.ConnID, user, pass string) {
	h.t.Helper()
	h.connect(conn)
	h.login(conn, user, pass)
}

// assertExclusive checks that no connection is both pending and logged in.
func (h *harness) assertExclusive(conns ...transport.ConnID) {
	h.t.Helper()
	for _, c := range conns {
		require.False(h.t, h.srv.Sessions().Exists(c) && h.srv.Pending().Has(c),
			"connection %d is both pending and logged in", c)
	}
}
