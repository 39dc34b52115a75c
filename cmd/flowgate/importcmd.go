package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/flowgate/bootstrap"
	"github.com/kbukum/flowgate/workflow"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	var (
		userID  string
		publish bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a YAML workflow for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := workflow.LoadDefinition(args[0])
			if err != nil {
				return err
			}
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
				wf, err := rt.trigger.Import(ctx, userID, file)
				if err != nil {
					return err
				}
				if publish {
					if wf, err = rt.trigger.Publish(ctx, wf.ID, userID); err != nil {
						return err
					}
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s published=%t credits=%d\n", wf.ID, wf.Published, wf.Credits)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner user id")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish after import")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
