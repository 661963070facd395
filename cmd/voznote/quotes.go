package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"voznote/internal/domain"
)

var quotesJSON bool

var quotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "Explore philosophical quotes",
}

var quotesSearchCmd = &cobra.Command{
	Use:   "search [theme]",
	Short: "Generate quotes about a theme, each with an image",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		quotes, err := a.quotes.Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if quotesJSON {
			return printJSON(quotes)
		}
		for _, q := range quotes {
			printQuote(q, a.quotes.IsFavorite(q))
		}
		return nil
	},
}

var quotesRandomCmd = &cobra.Command{
	Use:   "random",
	Short: "Show a random quote of the day",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		q, err := a.quotes.Random(cmd.Context())
		if err != nil {
			return err
		}
		if quotesJSON {
			return printJSON(q)
		}
		printQuote(q, a.quotes.IsFavorite(q))
		return nil
	},
}

var quotesFavoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "List saved quotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		favs := a.quotes.Favorites()
		if quotesJSON {
			return printJSON(favs)
		}
		if len(favs) == 0 {
			fmt.Println("Nenhum favorito salvo.")
			return nil
		}
		for _, q := range favs {
			printQuote(q, true)
		}
		return nil
	},
}

var quotesFavoriteCmd = &cobra.Command{
	Use:   "favorite [author] [quote]",
	Short: "Add a quote to favorites, or remove it if already saved",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		q := domain.Quote{Author: args[0], Text: strings.Join(args[1:], " ")}
		added, err := a.quotes.ToggleFavorite(cmd.Context(), q)
		if err != nil {
			return err
		}
		if added {
			fmt.Println("Salvo nos favoritos.")
		} else {
			fmt.Println("Removido dos favoritos.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(quotesCmd)
	quotesCmd.AddCommand(quotesSearchCmd, quotesRandomCmd, quotesFavoritesCmd, quotesFavoriteCmd)
	quotesCmd.PersistentFlags().BoolVar(&quotesJSON, "json", false, "output in JSON format")
}

func printQuote(q domain.Quote, favorite bool) {
	mark := " "
	if favorite {
		mark = "*"
	}
	fmt.Printf("%s \"%s\"\n  - %s\n", mark, q.Text, q.Author)
	if q.ImageURL != "" && !strings.HasPrefix(q.ImageURL, "data:") {
		fmt.Printf("  %s\n", q.ImageURL)
	}
	fmt.Println()
}
