package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/flowgate/bootstrap"
)

func newSweepCmd(root *rootOptions) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Trigger every due scheduled workflow once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.loadApp()
			if err != nil {
				return err
			}
			in, err := registerInfra(app)
			if err != nil {
				return err
			}
			var rt *runtime
			app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
				rt, err = buildRuntime(ctx, a, in)
				return err
			})
			return app.RunTask(cmd.Context(), func(ctx context.Context) error {
				report, err := rt.trigger.Sweep(ctx)
				if err != nil {
					return err
				}
				if wait {
					if err := rt.trigger.Wait(ctx); err != nil {
						return err
					}
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "due=%d triggered=%d duplicates=%d failed=%d\n",
					report.Due, report.Triggered, report.Duplicates, report.Failed)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for triggered executions to finish")
	return cmd
}
