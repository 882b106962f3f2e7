// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/sessiongate/pkg/errutil"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		fn   func() (string, error)
		want string
	}{
		{"config from env", map[string]string{"XDG_CONFIG_HOME": "/custom/config"}, ConfigDir, "/custom/config/sessiongate"},
		{"config default", map[string]string{"XDG_CONFIG_HOME": "", "HOME": "/home/u"}, ConfigDir, "/home/u/.config/sessiongate"},
		{"state from env", map[string]string{"XDG_STATE_HOME": "/custom/state"}, StateDir, "/custom/state/sessiongate"},
		{"state default", map[string]string{"XDG_STATE_HOME": "", "HOME": "/home/u"}, StateDir, "/home/u/.local/state/sessiongate"},
		{"runtime from env", map[string]string{"XDG_RUNTIME_DIR": "/run/user/1000"}, RuntimeDir, "/run/user/1000/sessiongate"},
		{"runtime falls back to state", map[string]string{"XDG_RUNTIME_DIR": "", "XDG_STATE_HOME": "/s"}, RuntimeDir, "/s/sessiongate/run"},
		{"config file", map[string]string{"XDG_CONFIG_HOME": "/c"}, ConfigFile, "/c/sessiongate/config.yaml"},
		{"control socket", map[string]string{"XDG_RUNTIME_DIR": "/r"}, ControlSocket, "/r/sessiongate/control.sock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirs_NoHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("HOME", "")

	for _, fn := range []func() (string, error){ConfigDir, StateDir, RuntimeDir, ConfigFile, ControlSocket} {
		_, err := fn()
		errutil.AssertErrorCode(t, err, "XDG_NO_HOME")
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	errutil.AssertErrorCode(t, EnsureDir(filepath.Join(file, "sub")), "XDG_MKDIR_FAILED")
}
