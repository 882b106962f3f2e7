// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

import (
	"bytes"
	"encoding/json"

	"github.com/samber/oops"
)

// JSONPayload is a raw JSON message body. An empty body decodes as a no-op,
// which is what payload-less messages such as Logout carry.
type JSONPayload []byte

// Decode unmarshals the body into v.
func (p JSONPayload) Decode(v any) error {
	trimmed := bytes.TrimSpace(p)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return oops.In("transport").Code("INVALID_PAYLOAD").Wrap(err)
	}
	return nil
}

// MustJSON encodes v into a JSONPayload and panics on failure. Intended for
// tests and static fixtures.
func MustJSON(v any) JSONPayload {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
