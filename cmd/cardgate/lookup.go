package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mtgmarket/cardgate/pkg/models"
)

// lookupCmd builds a one-shot command that runs fn against a freshly wired
// service and prints the result as indented JSON.
func lookupCmd(use, short string, args cobra.PositionalArgs, fn func(ctx context.Context, a *app, args []string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out, err := fn(ctx, a, args)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func printJSON(v any) error {
	if raw, ok := v.(json.RawMessage); ok {
		var pretty any
		if err := json.Unmarshal(raw, &pretty); err == nil {
			v = pretty
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSearchCmd() *cobra.Command {
	var page int
	cmd := lookupCmd("search <query>", "Search the catalog", cobra.ExactArgs(1),
		func(ctx context.Context, a *app, args []string) (any, error) {
			if page < 1 {
				return nil, fmt.Errorf("page must be a positive integer, got %d", page)
			}
			return a.service.SearchCards(ctx, args[0], page)
		})
	cmd.Flags().IntVarP(&page, "page", "p", 1, "result page")
	return cmd
}

func newCardCmd() *cobra.Command {
	return lookupCmd("card <id>", "Fetch a card by id", cobra.ExactArgs(1),
		func(ctx context.Context, a *app, args []string) (any, error) {
			return a.service.CardByID(ctx, args[0])
		})
}

func newPrintsCmd() *cobra.Command {
	return lookupCmd("prints <id>", "List every printing of a card", cobra.ExactArgs(1),
		func(ctx context.Context, a *app, args []string) (any, error) {
			return a.service.Prints(ctx, args[0])
		})
}

func newNamedCmd() *cobra.Command {
	var fuzzy bool
	cmd := lookupCmd("named <name>", "Look a card up by name", cobra.ExactArgs(1),
		func(ctx context.Context, a *app, args []string) (any, error) {
			q := models.NameQuery{Exact: args[0]}
			if fuzzy {
				q = models.NameQuery{Fuzzy: args[0]}
			}
			return a.service.ByName(ctx, q)
		})
	cmd.Flags().BoolVar(&fuzzy, "fuzzy", false, "fuzzy name match")
	return cmd
}

func newImagesCmd() *cobra.Command {
	return lookupCmd("images <id>", "Show a card's image URIs", cobra.ExactArgs(1),
		func(ctx context.Context, a *app, args []string) (any, error) {
			return a.service.Images(ctx, args[0])
		})
}

func newPricesCmd() *cobra.Command {
	return lookupCmd("prices <id>", "Show a card's current prices", cobra.ExactArgs(1),
		func(ctx context.Context, a *app, args []string) (any, error) {
			return a.service.Prices(ctx, args[0])
		})
}
