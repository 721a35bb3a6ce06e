package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darasa-ai/darasa/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <document-id>",
	Short: "Process an uploaded document into searchable chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		pipeline := ingest.NewPipeline(e.store, e.embedder, ingest.NewBlobFetcher(), e.ingestOptions(), e.logger)
		count, err := pipeline.Ingest(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d chunks for document %s\n", count, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
