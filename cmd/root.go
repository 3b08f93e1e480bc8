package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-extract/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "crm-extract",
	Short: "Extract CRM records from meeting summaries and sync them to HubSpot",
	Long: "Turns free-text sales meeting summaries into structured contact, company and deal records " +
		"with a language model, stores them, and pushes them to HubSpot on demand.",
	SilenceUsage: true,
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
