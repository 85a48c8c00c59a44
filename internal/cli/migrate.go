package cli

import (
	"github.com/spf13/cobra"

	"github.com/garyjia/approval-engine/pkg/database"
)

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withMigrator := func(fn func(m *database.Migrator) error) error {
		cfg, logger, err := opts.load()
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := database.New(database.Config{
			Path:            cfg.Database.Path,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		return fn(database.NewMigrator(db, logger))
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *database.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *database.Migrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *database.Migrator) error {
				return printVersion(cmd, m)
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func printVersion(cmd *cobra.Command, m *database.Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dirty {
		warnColor.Fprintf(out, "schema version %d (dirty)\n", v)
		return nil
	}
	successColor.Fprintf(out, "schema version %d\n", v)
	return nil
}

