package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"horizon/internal/dispatch"
	"horizon/internal/runreg"
	"horizon/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run -- <worker command...>",
		Short: "Dispatch the next pending project through the given worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			opts, err := ctx.storeOptions()
			if err != nil {
				return err
			}
			opts.RecoverRuntimeState = true

			st, err := ctx.openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			registry := runreg.NewProcessRegistry(cfg.Workflow.RunLogLines)
			dispatcher := dispatch.New(st, registry, args, logger)

			run, err := dispatcher.DispatchNext(cmd.Context())
			if err != nil {
				return err
			}
			if run == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "QUEUE_EMPTY no pending projects")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "RUN_FINISHED id=%d step=%s status=%s\n", run.ID, run.Step, run.Status)
			if run.Status == store.RunError {
				return errors.New(run.Message)
			}
			return nil
		},
	}
	return cmd
}
