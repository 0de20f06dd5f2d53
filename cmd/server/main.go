package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crm/internal/config"
	_ "github.com/JonMunkholm/crm/internal/core/kinds" // Register all kinds
	"github.com/JonMunkholm/crm/internal/logging"
)

// cfg is loaded once in the root pre-run and shared by every subcommand.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "crm",
	Short:         "CRM records API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load .env file if it exists (Overload overwrites existing env vars)
		if err := godotenv.Overload(); err != nil {
			slog.Info("no .env file found, using environment variables")
		}

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, initDBCmd, seedUsersCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
