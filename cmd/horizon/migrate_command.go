package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"horizon/internal/store"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var seriesPaths []string
	var reportFile string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the studio store to the latest schema",
		Long: "Migrate advances the store one schema version at a time, taking a " +
			"file-level backup before every step, then closes out any runs left " +
			"behind by a crashed process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withMaintenanceLock(func() error {
				opts, err := ctx.storeOptions()
				if err != nil {
					return err
				}
				opts.RunMigrations = true
				opts.RecoverRuntimeState = true
				opts.BackupPaths = append(opts.BackupPaths, seriesPaths...)

				st, err := ctx.openStore(opts)
				if err != nil {
					return err
				}
				defer st.Close()

				if summary := st.LastMigrationSummary(); summary != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "MIGRATION_OK from=%d to=%d backup=%s\n",
						summary.FromSchema, summary.ToSchema, summary.BackupDir)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "MIGRATION_SKIPPED schema already current")
				}

				if reportFile != "" {
					path, err := writeReportFile(cmd.Context(), st, reportFile)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "REPORT_WRITTEN %s\n", path)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&seriesPaths, "series-path", nil, "Extra directory to include in migration backups (repeatable)")
	cmd.Flags().StringVar(&reportFile, "report-file", "", "Write a JSON migration report to this path")
	return cmd
}

func newRollbackCommand(ctx *commandContext) *cobra.Command {
	var reportFile string

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore the store from the backup of the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withMaintenanceLock(func() error {
				opts, err := ctx.storeOptions()
				if err != nil {
					return err
				}
				st, err := ctx.openStore(opts)
				if err != nil {
					return err
				}
				defer st.Close()

				backupDir, err := st.RollbackLastMigration(cmd.Context())
				if errors.Is(err, store.ErrNothingToRollBack) {
					fmt.Fprintln(cmd.OutOrStdout(), "ROLLBACK_UNAVAILABLE nothing to roll back")
					return &exitCodeError{code: 2, msg: "nothing to roll back"}
				}
				if err != nil {
					return err
				}

				version, err := st.SchemaVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ROLLBACK_OK to=%d backup=%s\n", version, backupDir)

				if reportFile != "" {
					path, err := writeReportFile(cmd.Context(), st, reportFile)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "REPORT_WRITTEN %s\n", path)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reportFile, "report-file", "", "Write a JSON migration report to this path")
	return cmd
}
