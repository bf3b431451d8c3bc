package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meravakil/meravakil-backend/internal/app"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:           "meravakil",
	Short:         "MeraVakil legal assistant backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Env files to load before reading config (default: .env)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(ingestCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "meravakil: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads env files and config, then builds the logger.
func bootstrap() (*logger.Logger, app.Config, error) {
	app.LoadDotEnv(nil, envFiles...)
	cfg := app.LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, cfg, fmt.Errorf("init logger: %w", err)
	}
	return log, cfg, nil
}
