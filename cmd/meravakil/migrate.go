package main

import (
	"github.com/spf13/cobra"

	"github.com/meravakil/meravakil-backend/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		log, cfg, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()
		return app.Migrate(log, cfg)
	},
}
