package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"horizon/internal/config"
	"horizon/internal/store"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var reportFile string
	var limit int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize schema version, migration history, and recent changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := ctx.storeOptions()
			if err != nil {
				return err
			}
			st, err := ctx.openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			report, err := st.BuildMigrationReport(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if reportFile != "" {
				path, err := writeReportTo(report, reportFile)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "REPORT_WRITTEN %s\n", path)
				return nil
			}

			if stdoutIsTerminal() {
				fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
				return nil
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(report)
		},
	}

	cmd.Flags().StringVar(&reportFile, "report-file", "", "Write the JSON report to this path instead of stdout")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum history and change-log entries to include (0 for all)")
	return cmd
}

func writeReportFile(ctx context.Context, st *store.Store, target string) (string, error) {
	report, err := st.BuildMigrationReport(ctx, 50)
	if err != nil {
		return "", err
	}
	return writeReportTo(report, target)
}

func writeReportTo(report *store.MigrationReport, target string) (string, error) {
	path, err := config.ExpandPath(target)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func renderReport(report *store.MigrationReport) string {
	out := fmt.Sprintf("Schema version: %d (generated %s)\n",
		report.SchemaVersion, report.GeneratedAt.Format(time.RFC3339))

	historyRows := make([][]string, 0, len(report.History))
	for _, record := range report.History {
		historyRows = append(historyRows, []string{
			strconv.FormatInt(record.ID, 10),
			fmt.Sprintf("%d -> %d", record.FromSchema, record.ToSchema),
			record.BackupDir,
			record.AppliedAt.Format(time.RFC3339),
		})
	}
	out += renderTable(
		[]string{"ID", "Transition", "Backup", "Applied"},
		historyRows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	)

	if len(report.ChangeLog) > 0 {
		changeRows := make([][]string, 0, len(report.ChangeLog))
		for _, entry := range report.ChangeLog {
			changeRows = append(changeRows, []string{
				entry.CreatedAt.Format(time.RFC3339),
				entry.EntityType,
				entry.EntityKey,
				entry.Action,
			})
		}
		out += "\n" + renderTable(
			[]string{"When", "Entity", "Key", "Action"},
			changeRows,
			nil,
		)
	}
	return out
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
