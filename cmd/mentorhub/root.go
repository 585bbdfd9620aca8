// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/mentorhub/mentorhub/internal/config"
)

// serviceName identifies the process in logs and traces.
const serviceName = "mentorhub"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the MentorHub CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mentorhub",
		Short: "MentorHub - account and session service",
		Long: `MentorHub runs the account service behind the MentorHub platform:
signup with email verification, login, and cookie sessions that gate the
protected API routes.

Settings come from defaults, a YAML file (--config), flags and environment
variables, in increasing order of precedence.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/mentorhub/config.yaml when present)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
