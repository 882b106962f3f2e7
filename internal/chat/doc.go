// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package chat is a small room every logged-in session shares. It
// announces arrivals and departures through the session hooks and relays
// Say and Emote messages behind the login middleware.
//
// Messages:
//
//	client -> server  Say{"content"}, Emote{"content"}, Who
//	server -> client  Joined{"username"}, Left{"username","reason"},
//	                  Said{"username","content","when"},
//	                  Emoted{"username","content","when"}, WhoList{"usernames"}
package chat
