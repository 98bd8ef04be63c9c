package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mtgmarket/cardgate/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve card lookups as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			// stdout carries the protocol; logs already go to stderr.
			var ledger mcp.Summarizer
			if a.ledger != nil {
				ledger = a.ledger
			}
			return mcp.New(a.service, ledger, a.logger, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
