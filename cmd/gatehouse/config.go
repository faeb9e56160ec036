// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// NewConfigCmd creates the config subcommand tree.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
		Long: `Generate the configuration JSON schema, validate a config file against
it, or write a commented starter config to the default location.`,
	}

	cmd.AddCommand(newConfigSchemaCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return oops.
					Code("SCHEMA_GENERATION_FAILED").
					Wrapf(err, "failed to generate config schema")
			}
			cmd.Println(string(schema))
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file against the JSON schema and the semantic
rules. With no argument the file from --config or the default location
is validated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveValidatePath(args)
			if path == "" {
				return oops.
					Code("CONFIG_INVALID").
					Errorf("no config file to validate; pass a path or --config")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return oops.
					Code("CONFIG_READ_FAILED").
					With("path", path).
					Wrapf(err, "failed to read config file")
			}

			if err := config.ValidateSchema(data); err != nil {
				cmd.PrintErrln(config.FormatSchemaError(err))
				return oops.
					Code("CONFIG_INVALID").
					With("path", path).
					Errorf("schema validation failed")
			}

			// Schema validation passes structurally broken files through
			// Load as well so semantic rules (positive TTLs, known log
			// levels) are enforced too.
			if _, err := config.Load(path, nil); err != nil {
				return err
			}

			cmd.Println(path + ": configuration is valid")
			return nil
		},
	}
}

// resolveValidatePath picks the file to validate: an explicit argument
// wins, then the global --config flag, then the default location.
func resolveValidatePath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return resolveConfigPath()
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Write a fully commented configuration file with every setting at its
default value. The file goes to the --config path if given, otherwise
to the default location under $XDG_CONFIG_HOME.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFile
			if path == "" {
				path = xdg.ConfigFile()
			}

			if fileExists(path) {
				return oops.
					Code("CONFIG_EXISTS").
					With("path", path).
					Errorf("config file already exists at %s", path)
			}

			if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
				return oops.
					Code("CONFIG_WRITE_FAILED").
					With("path", path).
					Wrapf(err, "failed to create config directory")
			}

			if err := os.WriteFile(path, []byte(config.ExampleConfig), 0o600); err != nil {
				return oops.
					Code("CONFIG_WRITE_FAILED").
					With("path", path).
					Wrapf(err, "failed to write config file")
			}

			cmd.Println("Wrote " + path)
			return nil
		},
	}
}
