// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

// Permission names checked by the bundled handlers.
const (
	PermChatSay     = "chat:say"
	PermChatEmote   = "chat:emote"
	PermSessionKick = "session:kick"
	PermSessionList = "session:list"

	// PermThrottleBypass exempts a session from the message rate limit.
	PermThrottleBypass = "throttle:bypass"
)

var playerPowers = []string{
	"chat:say",
	"chat:emote",
}

var moderatorPowers = []string{
	"chat:*",
	"session:list",
	"session:kick",
	"throttle:bypass",
}

var adminPowers = []string{
	"**",
}

// DefaultRoles returns the built-in role definitions. Roles compose
// permission groups explicitly; there is no inheritance.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		"player":    playerPowers,
		"moderator": compose(playerPowers, moderatorPowers),
		"admin":     adminPowers,
	}
}

func compose(groups ...[]string) []string {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	result := make([]string, 0, total)
	for _, g := range groups {
		result = append(result, g...)
	}
	return result
}
