// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/sessiongate/internal/access"
	"github.com/holomush/sessiongate/pkg/errutil"
)

func TestDefaultGrants(t *testing.T) {
	g := access.DefaultGrants()

	tests := []struct {
		name       string
		roles      []string
		permission string
		want       bool
	}{
		{"player may say", []string{"player"}, access.PermChatSay, true},
		{"player may not kick", []string{"player"}, access.PermSessionKick, false},
		{"moderator may kick", []string{"moderator"}, access.PermSessionKick, true},
		{"moderator chat wildcard", []string{"moderator"}, "chat:whisper", true},
		{"moderator wildcard stays in segment", []string{"moderator"}, "chat:channel:create", false},
		{"admin may do anything", []string{"admin"}, "world:object:delete", true},
		{"any matching role wins", []string{"guest", "player"}, access.PermChatEmote, true},
		{"unknown role", []string{"guest"}, access.PermChatSay, false},
		{"no roles", nil, access.PermChatSay, false},
		{"empty permission", []string{"admin"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Allowed(tt.roles, tt.permission))
		})
	}
}

func TestNewStaticGrants_Invalid(t *testing.T) {
	_, err := access.NewStaticGrants(map[string][]string{"broken": {"chat:[say"}})
	errutil.AssertErrorCode(t, err, "INVALID_PERMISSION_PATTERN")

	_, err = access.NewStaticGrants(map[string][]string{"": {"chat:say"}})
	errutil.AssertErrorCode(t, err, "INVALID_ROLE")
}

func TestStaticGrants_Introspection(t *testing.T) {
	g, err := access.NewStaticGrants(map[string][]string{
		"b": {"x:1", "x:2"},
		"a": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, g.Roles())
	assert.Equal(t, []string{"x:1", "x:2"}, g.Patterns("b"))
	assert.Empty(t, g.Patterns("missing"))
}
