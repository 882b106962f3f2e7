// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package tcp

import (
	"encoding/json"

	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/transport"
)

// Envelope is the wire frame.
type Envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode builds a newline-terminated frame for name and payload. A nil
// payload is omitted.
func Encode(name string, payload any) ([]byte, error) {
	env := Envelope{Name: name}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, oops.In("tcp").Code("ENCODE_FAILED").With("name", name).Wrap(err)
		}
		env.Payload = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return nil, oops.In("tcp").Code("ENCODE_FAILED").With("name", name).Wrap(err)
	}
	return append(frame, '\n'), nil
}

// Decode parses one inbound line.
func Decode(line []byte) (string, transport.Payload, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return "", nil, oops.In("tcp").Code("MALFORMED_FRAME").Wrap(err)
	}
	if env.Name == "" {
		return "", nil, oops.In("tcp").Code("MALFORMED_FRAME").Errorf("frame has no name")
	}
	return env.Name, transport.JSONPayload(env.Payload), nil
}
