// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/sessiongate/pkg/errutil"
)

func decodeLog(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.In("session").Code("TEST_ERROR").
		With("key", "value").
		Errorf("something failed")

	errutil.LogError(logger, "operation failed", err, "conn_id", 7)

	entry := decodeLog(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "operation failed", entry["msg"])
	assert.Equal(t, "TEST_ERROR", entry["code"])
	assert.Equal(t, "session", entry["domain"])
	assert.EqualValues(t, 7, entry["conn_id"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	entry := decodeLog(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
}

func TestSafely(t *testing.T) {
	t.Run("returns nil when fn succeeds", func(t *testing.T) {
		assert.NoError(t, errutil.Safely("X", func() error { return nil }))
	})

	t.Run("passes returned error through", func(t *testing.T) {
		want := errors.New("boom")
		assert.Same(t, want, errutil.Safely("X", func() error { return want }))
	})

	t.Run("converts panic into coded error", func(t *testing.T) {
		err := errutil.Safely("HOOK_PANIC", func() error { panic("kaboom") })
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "HOOK_PANIC")
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("keeps panicked error in chain", func(t *testing.T) {
		sentinel := errors.New("sentinel")
		err := errutil.Safely("HOOK_PANIC", func() error { panic(sentinel) })
		assert.ErrorIs(t, err, sentinel)
	})
}
