package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/ragroute/internal/indexer"
)

var (
	ingestProject string
	ingestWorkers int
	ingestNoBuild bool
	buildProject  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Chunk a document directory into the store and rebuild the indexes",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the lexical and dense indexes from stored chunks",
	Args:  cobra.NoArgs,
	RunE:  runBuild,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Seed an empty lexical index from stored documents",
	Args:  cobra.NoArgs,
	RunE:  runBackfill,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestProject, "project", "", "project id for every file (default: inferred from projects/<id>/)")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "parallel chunking workers (default: number of CPUs)")
	ingestCmd.Flags().BoolVar(&ingestNoBuild, "no-build", false, "skip the index rebuild after ingesting")
	buildCmd.Flags().StringVar(&buildProject, "project", "", "limit the dense index to one project")

	rootCmd.AddCommand(ingestCmd, buildCmd, backfillCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	root, err := absPath(args[0])
	if err != nil {
		return err
	}

	e, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	stats, err := e.Indexer.IngestDir(cmd.Context(), root, &indexer.Config{
		Workers:   ingestWorkers,
		ProjectID: ingestProject,
	})
	if err != nil {
		return err
	}

	out := map[string]interface{}{"ingest": stats}
	if !ingestNoBuild {
		res, err := e.Indexer.Rebuild(cmd.Context(), "")
		if err != nil {
			return err
		}
		out["rebuild"] = res
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runBuild(cmd *cobra.Command, args []string) error {
	e, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	res, err := e.Indexer.Rebuild(cmd.Context(), buildProject)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	e, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	res, err := e.Storage.BackfillFromDocuments(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
