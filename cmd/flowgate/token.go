package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/flowgate/auth"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	var tier string
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Issue a user token signed with auth.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.loadApp()
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokens(app.Cfg.Auth)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(args[0], tier)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&tier, "tier", "", "rate limit tier claim")
	return cmd
}
