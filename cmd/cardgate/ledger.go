package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtgmarket/cardgate/pkg/config"
	"github.com/mtgmarket/cardgate/pkg/ledger"
)

func openLedger() (*ledger.Ledger, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return ledger.New(cfg.Ledger.DBPath)
}

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the upstream call ledger",
	}

	var since time.Duration
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show upstream calls per endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			summaries, err := l.Summary(context.Background(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No upstream calls recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENDPOINT\tCALLS\tERRORS\tAVG LATENCY")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%.1fms\n", s.Endpoint, s.Calls, s.Errors, s.AvgLatencyMs)
			}
			return w.Flush()
		},
	}
	statsCmd.Flags().DurationVar(&since, "since", 24*time.Hour, "look back this far")

	var limit int
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent upstream calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			calls, err := l.Recent(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(calls) == 0 {
				fmt.Println("No upstream calls recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tENDPOINT\tSTATUS\tLATENCY\tPATH\tERROR")
			for _, c := range calls {
				fmt.Fprintf(w, "%s\t%s\t%d\t%dms\t%s\t%s\n",
					c.CreatedAt.Local().Format("2006-01-02T15:04:05"), c.Endpoint, c.StatusCode, c.LatencyMs, c.Path, c.Error)
			}
			return w.Flush()
		},
	}
	recentCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of calls to show")

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old upstream call records",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			n, err := l.Prune(context.Background(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d record(s).\n", n)
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "delete records older than this")

	cmd.AddCommand(statsCmd, recentCmd, pruneCmd)
	return cmd
}
