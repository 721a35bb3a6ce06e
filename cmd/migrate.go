package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darasa-ai/darasa/db"
	"github.com/darasa-ai/darasa/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return db.Migrate(cfg.PostgresURL(), newLogger())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
