// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

// LoginResult is what a login method decides. It is either Accepted[ID] or
// Rejected.
type LoginResult interface {
	isLoginResult()
}

// Accepted logs the connection in as AccountID. Payload is sent with OK.
type Accepted[ID comparable] struct {
	Payload   any
	AccountID ID
}

// Rejected refuses the login. Payload is sent with Failed and the connection
// is closed.
type Rejected struct {
	Payload any
}

func (Accepted[ID]) isLoginResult() {}
func (Rejected) isLoginResult()     {}

// RegisterResult is what a registration method decides: Registered or
// RegisterRejected.
type RegisterResult interface {
	isRegisterResult()
}

// Registered reports a created account. Payload is sent with Register:OK.
type Registered struct {
	Payload any
}

// RegisterRejected reports a refused registration. Payload is sent with
// Register:Failed; the connection stays open.
type RegisterRejected struct {
	Payload any
}

func (Registered) isRegisterResult()       {}
func (RegisterRejected) isRegisterResult() {}
