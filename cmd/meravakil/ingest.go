package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meravakil/meravakil-backend/internal/app"
)

var ingestWatch bool

var ingestCmd = &cobra.Command{
	Use:   "ingest DIR",
	Short: "Embed a legal corpus directory into the vector index",
	Long: `Walks DIR for .txt, .md and .pdf files, splits them into token windows,
embeds each window and upserts it into Pinecone.

With --watch the command keeps running and re-ingests files as they are
created or modified.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "Keep watching DIR and re-ingest changed files")
}

func runIngest(cmd *cobra.Command, args []string) error {
	log, cfg, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()
	ctx := cmd.Context()
	dir := args[0]

	in, err := app.NewIngester(ctx, log, cfg)
	if err != nil {
		return err
	}
	stats, err := in.IngestDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", dir, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ingested %d files (%d chunks, %d skipped, %d stale removed)\n", stats.Files, stats.Chunks, stats.Skipped, stats.Pruned)

	if !ingestWatch {
		return nil
	}
	return in.Watch(ctx, dir)
}
