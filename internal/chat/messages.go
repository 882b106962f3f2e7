// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import "time"

// Message names.
const (
	MsgSay     = "Say"
	MsgEmote   = "Emote"
	MsgWho     = "Who"
	MsgJoined  = "Joined"
	MsgLeft    = "Left"
	MsgSaid    = "Said"
	MsgEmoted  = "Emoted"
	MsgWhoList = "WhoList"
)

// MaxContentLength bounds Say and Emote content, in bytes.
const MaxContentLength = 2000

// Utterance is the payload of Say and Emote.
type Utterance struct {
	Content string `json:"content"`
}

// Joined announces a new session to the others.
type Joined struct {
	Username string `json:"username"`
}

// Left announces a finished session. Reason is "logout" or a kick kind.
type Left struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

// Said carries a relayed Say or Emote.
type Said struct {
	Username string    `json:"username"`
	Content  string    `json:"content"`
	When     time.Time `json:"when"`
}

// WhoList answers Who.
type WhoList struct {
	Usernames []string `json:"usernames"`
}
