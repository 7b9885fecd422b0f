package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/ragroute/internal/searcher"
)

var (
	searchLimit   int
	searchMode    string
	searchProject string
)

var routeCmd = &cobra.Command{
	Use:   "route <query>",
	Short: "Print the routing decision for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRoute,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Retrieve ranked corpus passages for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", searcher.DefaultLimit, "maximum number of results (1-100)")
	searchCmd.Flags().StringVar(&searchMode, "mode", string(searcher.SearchModeHybrid), "search mode: hybrid, dense or lexical")
	searchCmd.Flags().StringVar(&searchProject, "project", "", "only return passages from this project")

	rootCmd.AddCommand(routeCmd, searchCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	e, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	decision := e.Router.Route(cmd.Context(), strings.Join(args, " "))
	return printJSON(cmd.OutOrStdout(), decision)
}

func runSearch(cmd *cobra.Command, args []string) error {
	e, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	resp, err := e.Searcher.Search(cmd.Context(), searcher.SearchRequest{
		Query:     strings.Join(args, " "),
		Limit:     searchLimit,
		Mode:      searcher.SearchMode(searchMode),
		ProjectID: searchProject,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
