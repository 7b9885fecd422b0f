package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/ragroute/internal/dense"
	"github.com/dshills/ragroute/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store, index and FAQ state as JSON",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "ragroute %s\n", version)
		fmt.Fprintf(w, "Build Time: %s\n", buildTime)
		fmt.Fprintf(w, "Build Mode: %s\n", storage.BuildMode)
		fmt.Fprintf(w, "SQLite Driver: %s\n", storage.DriverName)
		fmt.Fprintf(w, "Dense Index: %v\n", dense.Available)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, versionCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	st, err := e.Status(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), st)
}
