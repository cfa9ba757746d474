package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Laperavee/Cielo-API/cielo/graph"
	"github.com/spf13/cobra"
)

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <address>",
		Short: "Send one related-wallets request and print the raw answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runProbe(cmd.Context(), cmd, args[0])
		},
	}
}

func (a *app) runProbe(ctx context.Context, cmd *cobra.Command, address string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sess, err := newSession(a.conf, a.logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	status, body, err := sess.client.Probe(ctx, graph.NewAddress(address))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n%s\n", status, http.StatusText(status), body)
	return nil
}
