// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import (
	"maps"
	"slices"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// StaticGrants maps role names to compiled permission patterns. It is
// immutable after construction and safe for concurrent use.
type StaticGrants struct {
	roles map[string][]compiledPermission
}

var _ Grants = (*StaticGrants)(nil)

type compiledPermission struct {
	pattern string
	glob    glob.Glob
}

// NewStaticGrants compiles roles. Unknown glob syntax is an
// INVALID_PERMISSION_PATTERN error.
func NewStaticGrants(roles map[string][]string) (*StaticGrants, error) {
	compiled := make(map[string][]compiledPermission, len(roles))
	for role, perms := range roles {
		if role == "" {
			return nil, oops.In("access").Code("INVALID_ROLE").Errorf("role name cannot be empty")
		}
		list := make([]compiledPermission, 0, len(perms))
		for _, p := range perms {
			g, err := glob.Compile(p, ':')
			if err != nil {
				return nil, oops.In("access").
					Code("INVALID_PERMISSION_PATTERN").
					With("role", role).
					With("pattern", p).
					Wrap(err)
			}
			list = append(list, compiledPermission{pattern: p, glob: g})
		}
		compiled[role] = list
	}
	return &StaticGrants{roles: compiled}, nil
}

// DefaultGrants compiles DefaultRoles.
//
// Panics if a built-in pattern fails to compile.
func DefaultGrants() *StaticGrants {
	g, err := NewStaticGrants(DefaultRoles())
	if err != nil {
		panic("invalid permission pattern in DefaultRoles: " + err.Error())
	}
	return g
}

// Allowed reports whether any of roles grants permission. Unknown roles
// grant nothing.
func (s *StaticGrants) Allowed(roles []string, permission string) bool {
	if permission == "" {
		return false
	}
	for _, role := range roles {
		for _, perm := range s.roles[role] {
			if perm.glob.Match(permission) {
				return true
			}
		}
	}
	return false
}

// Patterns returns the patterns granted to role, in definition order.
func (s *StaticGrants) Patterns(role string) []string {
	perms := s.roles[role]
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.pattern
	}
	return out
}

// Roles returns the defined role names, sorted.
func (s *StaticGrants) Roles() []string {
	return slices.Sorted(maps.Keys(s.roles))
}
