// Package cmd wires the darasa CLI: database migration, document
// ingestion, curriculum seeding and retrieval queries.
package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/darasa-ai/darasa/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "darasa",
	Short: "Darasa curriculum retrieval engine",
	Long: `Darasa ingests curriculum documents into a pgvector index and
answers retrieval queries against it.

Typical workflow:
  darasa migrate          apply database migrations
  darasa seed ./seeds     bulk-load pre-chunked curriculum content
  darasa ingest <id>      process an uploaded document
  darasa query "..."      run a hybrid retrieval query`,
	SilenceUsage: true,
}

// Execute runs the root command. Commands are cancelled on SIGINT and
// SIGTERM so long ingestion runs shut down cleanly.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}
