// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

// Message names exchanged with clients.
const (
	MsgWelcome             = "Welcome"
	MsgTimeout             = "Timeout"
	MsgOK                  = "OK"
	MsgFailed              = "Failed"
	MsgKicked              = "Kicked"
	MsgLogout              = "Logout"
	MsgLoggedOut           = "LoggedOut"
	MsgNotLoggedIn         = "NotLoggedIn"
	MsgAlreadyLoggedIn     = "AlreadyLoggedIn"
	MsgAccountAlreadyInUse = "AccountAlreadyInUse"
	MsgForbidden           = "Forbidden"
	MsgRegisterOK          = "Register:OK"
	MsgRegisterFailed      = "Register:Failed"
)

const (
	loginPrefix    = "Login:"
	registerPrefix = "Register:"
)

// LoginMessage returns the message name for a login method.
func LoginMessage(method string) string {
	return loginPrefix + method
}

// RegisterMessage returns the message name for a registration method.
func RegisterMessage(method string) string {
	return registerPrefix + method
}
