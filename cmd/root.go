package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ortiz-cia/precios-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "precios-cli",
	Short: "Livestock price acquisition pipeline",
	Long:  "Scrapes the auction market report form and the restocking price proxy, normalizes the locale-formatted payloads and persists them idempotently.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
