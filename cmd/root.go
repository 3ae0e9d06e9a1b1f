package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shelfline/bookpricer/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bookpricer",
	Short: "Market pricing engine for book inventory",
	Long:  "Queries completed-sales data for ISBNs, aggregates it into pricing estimates, and serves them through a two-tier cache with rate-limit backoff.",
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
