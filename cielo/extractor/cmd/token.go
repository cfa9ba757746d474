package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect or renew the cached bearer token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the cached token, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(a.conf, a.logger)
			if err != nil {
				return err
			}
			defer sess.Close()

			fmt.Fprintln(cmd.OutOrStdout(), maskToken(sess.manager.Token()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "renew",
		Short: "Run the renew command and store the new token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			sess, err := newSession(a.conf, a.logger)
			if err != nil {
				return err
			}
			defer sess.Close()

			token, err := sess.manager.Renew(ctx, sess.manager.Token())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), maskToken(token))
			return nil
		},
	})

	return cmd
}

func maskToken(token string) string {
	switch {
	case token == "":
		return "<none>"
	case len(token) <= 8:
		return "********"
	default:
		return token[:4] + "..." + token[len(token)-4:]
	}
}
