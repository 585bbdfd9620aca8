// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/mentorhub/mentorhub/internal/config"
	"github.com/mentorhub/mentorhub/internal/store"
	"github.com/mentorhub/mentorhub/internal/xdg"
)

// migrator is the part of *store.Migrator the commands use.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// newMigrator opens a migrator; tests replace it.
var newMigrator = func(databaseURL string) (migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewMigrateCmd creates the migrate command. Without a subcommand it applies
// pending migrations.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, revert or inspect the embedded PostgreSQL schema migrations.`,
		RunE:  withMigrator(runMigrateUp),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(runMigrateUp),
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations (all of them unless --steps is set)",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			yes, _ := cmd.Flags().GetBool("yes")    //nolint:errcheck // flag is registered below
			steps, _ := cmd.Flags().GetInt("steps") //nolint:errcheck // flag is registered below
			if steps != 0 {
				return runMigrateDownSteps(cmd, m, steps)
			}
			return runMigrateDown(cmd, m, yes)
		}),
	}
	down.Flags().Bool("yes", false, "confirm reverting every migration")
	down.Flags().Int("steps", 0, "revert only the last N migrations")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(runMigrateVersion),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied and clear the dirty flag",
		Long: `Record <version> as the applied schema version without running any
migration. Use it after repairing a migration that failed midway.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(runMigrateForce),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(runMigrateStatus),
	})

	return cmd
}

// withMigrator opens a migrator for the configured database around fn.
func withMigrator(fn func(cmd *cobra.Command, m migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		databaseURL, err := getDatabaseURL(cmd)
		if err != nil {
			return err
		}
		m, err := newMigrator(databaseURL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		return fn(cmd, m, args)
	}
}

// getDatabaseURL reads only the database setting, so migrations run without
// the secrets serve needs.
func getDatabaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := config.Read(xdg.ResolveConfigFile(configFile), cmd.Flags())
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").With("key", "database-url").Errorf("DATABASE_URL is required")
	}
	return cfg.DatabaseURL, nil
}

func runMigrateUp(cmd *cobra.Command, m migrator, _ []string) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Migrations completed successfully (version %d)\n", version)
	return nil
}

func runMigrateDown(cmd *cobra.Command, m migrator, confirmed bool) error {
	if !confirmed {
		return oops.Code("MIGRATION_NOT_CONFIRMED").Errorf("migrate down drops every table; rerun with --yes to confirm")
	}
	cmd.Println("Reverting all migrations...")
	if err := m.Down(); err != nil {
		return err
	}
	cmd.Println("All migrations reverted")
	return nil
}

func runMigrateDownSteps(cmd *cobra.Command, m migrator, steps int) error {
	if steps < 0 {
		return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("--steps must be positive, got %d", steps)
	}
	cmd.Printf("Reverting %d migration(s)...\n", steps)
	if err := m.Steps(-steps); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Schema is now at version %d\n", version)
	return nil
}

func runMigrateVersion(cmd *cobra.Command, m migrator, _ []string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	line := strconv.FormatUint(uint64(version), 10)
	if name, err := store.MigrationName(version); err == nil && name != "" {
		line += " " + name
	}
	if dirty {
		line += " (dirty)"
	}
	cmd.Println(line)
	return nil
}

func runMigrateForce(cmd *cobra.Command, m migrator, args []string) error {
	version, err := parseForceVersion(args[0])
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return err
	}
	cmd.Printf("Forced schema version to %d\n", version)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, m migrator, _ []string) error {
	st, err := m.Status()
	if err != nil {
		return err
	}

	state := "clean"
	if st.Dirty {
		state = "dirty"
	}
	cmd.Printf("Current version: %d (%s)\n", st.Current, state)
	for _, mig := range st.Applied {
		cmd.Printf("  [x] %s\n", mig.Name)
	}
	for _, mig := range st.Pending {
		cmd.Printf("  [ ] %s\n", mig.Name)
	}
	if len(st.Pending) == 0 {
		cmd.Println("Schema is up to date")
	}
	return nil
}

// parseForceVersion parses a non-negative schema version.
func parseForceVersion(s string) (int, error) {
	s = strings.TrimSpace(s)
	version, err := strconv.Atoi(s)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer, got %q", s)
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative, got %d", version)
	}
	return version, nil
}
