// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/sessiongate/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "surrounding whitespace is trimmed", input: "  42 ", wantVersion: 42},
		{name: "non-numeric", input: "abc", wantErr: true},
		{name: "float", input: "1.5", wantErr: true},
		{name: "trailing characters", input: "3abc", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)

			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

// migrateLeaf returns the parsed "migrate status" command so its merged
// flag set is populated.
func migrateLeaf(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	root := NewRootCmd()
	leaf, rest, err := root.Find(append([]string{"migrate", "status"}, args...))
	require.NoError(t, err)
	require.NoError(t, leaf.ParseFlags(rest))
	return leaf
}

func TestResolveDatabaseURL(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	configFile = ""

	t.Run("missing everywhere", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := resolveDatabaseURL(migrateLeaf(t))
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		errutil.AssertErrorContext(t, err, "key", "database-url")
	})

	t.Run("environment fallback", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/db")
		url, err := resolveDatabaseURL(migrateLeaf(t))
		require.NoError(t, err)
		assert.Equal(t, "postgres://env/db", url)
	})

	t.Run("config file beats environment", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/db")
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("database-url: postgres://file/db\n"), 0o600))
		configFile = path
		t.Cleanup(func() { configFile = "" })

		url, err := resolveDatabaseURL(migrateLeaf(t))
		require.NoError(t, err)
		assert.Equal(t, "postgres://file/db", url)
	})

	t.Run("flag beats everything", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/db")
		url, err := resolveDatabaseURL(migrateLeaf(t, "--database-url", "postgres://flag/db"))
		require.NoError(t, err)
		assert.Equal(t, "postgres://flag/db", url)
	})
}

func TestFormatMigrationStatus(t *testing.T) {
	assert.Equal(t, "Current version: none\nPending:\n  000001_accounts\n  000002_account_lockouts",
		formatMigrationStatus(0, false, []uint{1, 2}))
	assert.Equal(t, "Current version: 2 (dirty)\nPending: none",
		formatMigrationStatus(2, true, nil))
	assert.Equal(t, "Current version: 2\nPending:\n  99",
		formatMigrationStatus(2, false, []uint{99}))
}

func TestMigrateCommand_Help(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"migrate", "--help"})

	require.NoError(t, cmd.Execute())
	for _, sub := range []string{"up", "down", "status", "force", "--database-url"} {
		assert.Contains(t, buf.String(), sub)
	}
}
