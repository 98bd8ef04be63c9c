package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "cardgate",
		Short:         "cardgate - rate-limited, cached access to the card catalog",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "cardgate.yaml", "path to config file")

	root.AddCommand(
		newServeCmd(),
		newSearchCmd(),
		newCardCmd(),
		newPrintsCmd(),
		newNamedCmd(),
		newImagesCmd(),
		newPricesCmd(),
		newLedgerCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
