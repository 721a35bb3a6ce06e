package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/darasa-ai/darasa/internal/ingest"
)

var seedCmd = &cobra.Command{
	Use:   "seed <path>",
	Short: "Bulk-load pre-chunked curriculum content",
	Long: `Seed loads JSON seed files (a file or a directory of .json files)
into the index. Each entry carries its content, subject and source
file; entries are grouped by source file into one document each.
Already-seeded source files are skipped, so the command is safe to
re-run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		chunks, err := loadSeeds(args[0])
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			return fmt.Errorf("no seed chunks found in %s", args[0])
		}

		seeder := ingest.NewSeeder(e.store, e.embedder, e.ingestOptions(), e.logger)
		report, err := seeder.Seed(ctx, chunks)
		if err != nil {
			return err
		}

		fmt.Printf("Seeded %d documents (%d chunks), skipped %d already loaded\n",
			report.Documents, report.Chunks, report.Skipped)
		if report.FailedBatches > 0 {
			fmt.Printf("Warning: %d embedding batches failed, re-run to fill gaps\n", report.FailedBatches)
		}
		return nil
	},
}

func loadSeeds(path string) ([]ingest.SeedChunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", path, err)
	}
	if info.IsDir() {
		return ingest.LoadSeedDir(path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return nil, fmt.Errorf("%s is not a .json seed file", path)
	}
	return ingest.LoadSeedFile(path)
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
