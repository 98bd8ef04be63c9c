package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mtgmarket/cardgate/pkg/api"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the card API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if listen == "" {
				listen = a.cfg.Listen
			}
			opts := []api.Option{api.WithLogger(a.logger)}
			if a.ledger != nil {
				opts = append(opts, api.WithLedger(a.ledger))
			}

			a.logger.Info("starting cardgate",
				"config", configPath,
				"catalog", a.cfg.Catalog.BaseURL,
				"rate_limit_backend", a.cfg.RateLimit.Backend,
			)
			return api.New(listen, a.service, opts...).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}
