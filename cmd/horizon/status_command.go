package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show every project with its queue state and latest run",
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

			version, err := st.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			summaries, err := st.ListProjectsWithStageSummary(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Store: %s (schema %d)\n", st.Path(), version)
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No projects.")
				return nil
			}

			rows := make([][]string, 0, len(summaries))
			for _, summary := range summaries {
				series := summary.SeriesName
				if series != "" && summary.VolumeNo != nil {
					series = fmt.Sprintf("%s #%g", series, *summary.VolumeNo)
				}
				lastRun := "-"
				if summary.LastRunStep != "" {
					lastRun = fmt.Sprintf("%s (%s)", summary.LastRunStep, summary.LastRunStatus)
				}
				rows = append(rows, []string{
					strconv.FormatInt(summary.ID, 10),
					summary.Name,
					series,
					string(summary.Status),
					summary.ActiveStep,
					lastRun,
					strconv.Itoa(summary.OpenFindings),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Project", "Series", "Status", "Step", "Last Run", "Open QA"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	return cmd
}
