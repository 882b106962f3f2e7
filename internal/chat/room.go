// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/protocol"
	"github.com/holomush/sessiongate/internal/session"
	"github.com/holomush/sessiongate/internal/transport"
)

// NameFunc renders the display name of an account.
type NameFunc[ID comparable] func(account protocol.Account[ID]) string

// nameKey is system data so a user-data clear keeps it.
var nameKey = session.NewSystemKey[string]("chat.name")

// Room relays chat between the sessions of one protocol.Server.
type Room[ID comparable] struct {
	sender transport.Sender
	name   NameFunc[ID]
	logger *slog.Logger
	now    func() time.Time

	srv *protocol.Server[ID]
}

// NewRoom creates a room that sends through sender. A nil name falls back
// to the account id.
func NewRoom[ID comparable](sender transport.Sender, name NameFunc[ID], logger *slog.Logger) *Room[ID] {
	if name == nil {
		name = func(account protocol.Account[ID]) string { return fmt.Sprint(account.AccountID()) }
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Room[ID]{sender: sender, name: name, logger: logger, now: time.Now}
}

// Hooks returns the session hooks that announce arrivals and departures.
// They must be installed in the protocol.Config of the server later
// passed to Mount.
func (r *Room[ID]) Hooks() (protocol.StartingHook[ID], protocol.TerminatingHook) {
	return r.joined, r.left
}

// Mount attaches the room to srv and registers its handlers. say and emote
// guard Say and Emote; a nil check only requires a session. Who always
// only requires a session.
func (r *Room[ID]) Mount(srv *protocol.Server[ID], mux transport.Mux, say, emote protocol.PermissionCheck) error {
	r.srv = srv
	routes := []struct {
		name string
		h    transport.Handler
	}{
		{MsgSay, gated(srv, say, r.relay(MsgSaid))},
		{MsgEmote, gated(srv, emote, r.relay(MsgEmoted))},
		{MsgWho, srv.LoginRequired(r.who)},
	}
	for _, route := range routes {
		if err := mux.Handle(route.name, route.h); err != nil {
			return oops.In("chat").Wrap(err)
		}
	}
	return nil
}

func gated[ID comparable](srv *protocol.Server[ID], check protocol.PermissionCheck, h transport.Handler) transport.Handler {
	if check == nil {
		return srv.LoginRequired(h)
	}
	return srv.LoginRequiredWith(check, h)
}

func (r *Room[ID]) joined(ctx context.Context, conn transport.ConnID, account protocol.Account[ID]) error {
	name := r.name(account)
	if err := session.Set(r.srv.Sessions(), conn, nameKey, name); err != nil {
		return oops.In("chat").Wrap(err)
	}
	r.broadcast(ctx, MsgJoined, Joined{Username: name}, conn)
	return nil
}

func (r *Room[ID]) left(ctx context.Context, conn transport.ConnID, reason *protocol.KickReason) error {
	name, ok, err := session.TryGet(r.srv.Sessions(), conn, nameKey)
	if err != nil {
		return oops.In("chat").Wrap(err)
	}
	if !ok {
		// The starting hook never ran for this session.
		return nil
	}
	why := "logout"
	if reason != nil {
		why = string(reason.Kind)
	}
	r.broadcast(ctx, MsgLeft, Left{Username: name, Reason: why}, conn)
	return nil
}

func (r *Room[ID]) relay(reply string) transport.Handler {
	return func(ctx context.Context, conn transport.ConnID, payload transport.Payload) error {
		var msg Utterance
		if err := payload.Decode(&msg); err != nil {
			return oops.In("chat").Code("INVALID_MESSAGE").With("conn_id", conn).Wrap(err)
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" || len(content) > MaxContentLength || !utf8.ValidString(content) {
			return oops.In("chat").Code("INVALID_MESSAGE").
				With("conn_id", conn).
				With("length", len(content)).
				Errorf("content must be 1 to %d bytes of UTF-8", MaxContentLength)
		}
		name, err := session.Get(r.srv.Sessions(), conn, nameKey)
		if err != nil {
			return oops.In("chat").Wrap(err)
		}
		r.broadcast(ctx, reply, Said{Username: name, Content: content, When: r.now().UTC()})
		return nil
	}
}

func (r *Room[ID]) who(_ context.Context, conn transport.ConnID, _ transport.Payload) error {
	store := r.srv.Sessions()
	names := lo.FilterMap(store.Conns(), func(c transport.ConnID, _ int) (string, bool) {
		name, ok, err := session.TryGet(store, c, nameKey)
		return name, ok && err == nil
	})
	slices.Sort(names)
	//nolint:wrapcheck // transport errors carry their own domain
	return r.sender.Send(conn, MsgWhoList, WhoList{Usernames: lo.Uniq(names)})
}

// broadcast sends to every logged-in connection except the skipped ones.
// Send failures only affect their own connection and are logged.
func (r *Room[ID]) broadcast(ctx context.Context, name string, payload any, skip ...transport.ConnID) {
	for _, conn := range r.srv.Sessions().Conns() {
		if slices.Contains(skip, conn) {
			continue
		}
		if err := r.sender.Send(conn, name, payload); err != nil {
			r.logger.DebugContext(ctx, "chat delivery failed",
				"conn_id", conn,
				"message", name,
				"error", err,
			)
		}
	}
}
