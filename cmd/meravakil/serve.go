package main

import (
	"github.com/spf13/cobra"

	"github.com/meravakil/meravakil-backend/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	log, cfg, err := bootstrap()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("Startup failed", "error", err)
		log.Sync()
		return err
	}
	defer a.Close()

	a.Start(ctx)
	return a.Run(ctx)
}
