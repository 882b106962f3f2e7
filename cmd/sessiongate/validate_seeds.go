// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"slices"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/sessiongate/internal/access"
	"github.com/holomush/sessiongate/internal/auth"
)

type validateSeedsConfig struct {
	schema bool
}

// NewValidateSeedsCmd creates the validate-seeds subcommand.
func NewValidateSeedsCmd() *cobra.Command {
	cfg := &validateSeedsConfig{}

	cmd := &cobra.Command{
		Use:   "validate-seeds [FILE]",
		Short: "Validate an account seed file without starting the server",
		Long: `Validates an account seed file against its JSON schema and checks
that every role it grants is known. FILE defaults to seed-file from the
config. Does NOT start the server or require a database connection.

Useful in CI pipelines to catch seed errors early:
  sessiongate validate-seeds deploy/seeds.yaml

With --schema, prints the seed file JSON schema instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.schema {
				data, err := auth.GenerateSeedSchema()
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				c, err := loadConfig(nil)
				if err != nil {
					return err
				}
				path = c.SeedFile
			}
			if path == "" {
				return oops.Code("CONFIG_INVALID").With("key", "seed-file").Errorf("no seed file given")
			}

			count, err := runValidateSeeds(path, access.DefaultGrants().Roles())
			if err != nil {
				return err
			}
			cmd.Printf("%s: %d account(s) valid\n", path, count)
			return nil
		},
	}

	cmd.Flags().BoolVar(&cfg.schema, "schema", false, "print the seed file JSON schema and exit")
	return cmd
}

// runValidateSeeds parses the seed file at path and checks every role
// against known.
func runValidateSeeds(path string, known []string) (int, error) {
	seeds, err := auth.ReadSeeds(path)
	if err != nil {
		return 0, err
	}

	var unknown []string
	for _, account := range seeds.Accounts {
		for _, role := range account.Roles {
			if !slices.Contains(known, role) {
				unknown = append(unknown, fmt.Sprintf("%s: %s", account.Username, role))
			}
		}
	}
	if len(unknown) > 0 {
		return 0, oops.Code("SEED_INVALID").
			With("path", path).
			With("unknown_roles", unknown).
			Errorf("validation failed: %d unknown role grant(s)", len(unknown))
	}
	return len(seeds.Accounts), nil
}
