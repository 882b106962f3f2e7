// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/holomush/sessiongate/internal/config"
	"github.com/holomush/sessiongate/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the sessiongate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessiongate",
		Short: "sessiongate - session authentication gateway",
		Long: `sessiongate accepts client connections, walks them through login,
registration and logout, and keeps track of the resulting sessions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/sessiongate/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewSessionsCmd())
	cmd.AddCommand(NewKickCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewValidateSeedsCmd())

	return cmd
}

// loadConfig reads the --config file, or the XDG default when it exists,
// and layers flags on top. An explicit --config must exist.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, required := configFile, configFile != ""
	if path == "" {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}
	return config.Load(path, required, flags)
}
