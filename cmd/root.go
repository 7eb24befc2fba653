package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verdantly/proposal-cli/internal/config"
)

// moduleVersion is stamped onto interaction log records so persisted
// exchanges can be traced back to the code that produced them.
const moduleVersion = "proposal-cli/1.0"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "proposal-cli",
	Short: "AI-assisted sustainable product proposal generator",
	Long:  "Generates budget-constrained product proposals with an AI provider, verifies every figure against the canonical catalog, and persists accepted proposals with their environmental impact.",
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
