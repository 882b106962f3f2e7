// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package control

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/protocol"
	"github.com/holomush/sessiongate/internal/session"
)

// Counts summarizes the live protocol state.
type Counts struct {
	Sessions int `json:"sessions"`
	Accounts int `json:"accounts"`
	Pending  int `json:"pending"`
}

// SessionInfo describes one logged-in connection.
type SessionInfo struct {
	ConnID    uint64    `json:"conn_id"`
	SessionID string    `json:"session_id"`
	AccountID string    `json:"account_id"`
	StartedAt time.Time `json:"started_at"`
}

// Backend is what the control plane inspects and acts on.
type Backend interface {
	Counts() Counts
	Sessions() []SessionInfo
	// Kick ends every session of accountID and returns how many ended.
	Kick(ctx context.Context, accountID, message string) (int, error)
}

// ProtocolBackend adapts a protocol.Server. parse turns the textual
// account id of a kick request into the server's account type.
type ProtocolBackend[ID comparable] struct {
	srv   *protocol.Server[ID]
	parse func(string) (ID, error)
}

var _ Backend = (*ProtocolBackend[string])(nil)

// NewProtocolBackend creates a ProtocolBackend.
func NewProtocolBackend[ID comparable](srv *protocol.Server[ID], parse func(string) (ID, error)) *ProtocolBackend[ID] {
	return &ProtocolBackend[ID]{srv: srv, parse: parse}
}

// Counts implements Backend.
func (b *ProtocolBackend[ID]) Counts() Counts {
	store := b.srv.Sessions()
	return Counts{
		Sessions: store.Len(),
		Accounts: store.AccountCount(),
		Pending:  b.srv.Pending().Len(),
	}
}

// Sessions implements Backend.
func (b *ProtocolBackend[ID]) Sessions() []SessionInfo {
	return lo.Map(b.srv.Sessions().All(), func(s *session.Session[ID], _ int) SessionInfo {
		return SessionInfo{
			ConnID:    uint64(s.Conn()),
			SessionID: s.ID().String(),
			AccountID: fmt.Sprint(s.Account()),
			StartedAt: s.StartedAt(),
		}
	})
}

// Kick implements Backend.
func (b *ProtocolBackend[ID]) Kick(ctx context.Context, accountID, message string) (int, error) {
	id, err := b.parse(accountID)
	if err != nil {
		return 0, oops.In("control").Code("INVALID_ACCOUNT_ID").With("account_id", accountID).Wrap(err)
	}
	if message == "" {
		message = "kicked by operator"
	}
	//nolint:wrapcheck // protocol errors are already coded
	return b.srv.Kick(ctx, id, protocol.Custom(message))
}
