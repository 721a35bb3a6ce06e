package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/darasa-ai/darasa/internal/index"
	"github.com/darasa-ai/darasa/internal/ingest"
)

var (
	listSubject string
	listStatus  string
	listSearch  string

	addTitle   string
	addSubject string
	addLevel   string
)

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "Manage indexed documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents in the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		docs, err := e.store.ListDocuments(ctx, index.DocumentFilter{
			Subject: listSubject,
			Status:  listStatus,
			Search:  listSearch,
		})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSUBJECT\tLEVEL\tSTATUS\tCHUNKS")
		for _, d := range docs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				d.ID, d.Title, orDash(d.Subject), orDash(d.Level), d.Status, d.ChunkCount)
		}
		return w.Flush()
	},
}

var documentsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		stats, err := e.store.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Documents: %d total (%d ready, %d processing, %d pending, %d error)\n",
			stats.Total, stats.Ready, stats.Processing, stats.Pending, stats.Errors)
		fmt.Printf("Chunks:    %d\n", stats.TotalChunks)
		return nil
	},
}

var documentsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Register a local file as a pending document",
	Long: `Add registers a file in the index without processing it. Run
"darasa ingest <id>" afterwards to chunk and embed it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", args[0], err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("inspecting %s: %w", path, err)
		}

		filename := filepath.Base(path)
		title := addTitle
		if title == "" {
			title = filename
		}
		level := addLevel
		if level == "" {
			level = ingest.InferLevel(filename)
		}

		doc := &index.Document{
			Title:    title,
			Filename: filename,
			BlobURL:  path,
			FileSize: info.Size(),
			Subject:  addSubject,
			Level:    level,
		}
		if err := e.store.CreateDocument(ctx, doc); err != nil {
			return err
		}
		fmt.Printf("Registered document %s (%s)\n", doc.ID, filename)
		return nil
	},
}

var documentsRemoveCmd = &cobra.Command{
	Use:   "rm <document-id>",
	Short: "Delete a document and all its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		if err := e.store.DeleteDocument(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted document %s\n", args[0])
		return nil
	},
}

func init() {
	documentsListCmd.Flags().StringVar(&listSubject, "subject", "", "filter by subject")
	documentsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	documentsListCmd.Flags().StringVar(&listSearch, "search", "", "match title or filename")

	documentsAddCmd.Flags().StringVar(&addTitle, "title", "", "document title (defaults to the filename)")
	documentsAddCmd.Flags().StringVar(&addSubject, "subject", "", "curriculum subject")
	documentsAddCmd.Flags().StringVar(&addLevel, "level", "", "curriculum level (inferred from the filename if empty)")

	documentsCmd.AddCommand(documentsListCmd, documentsStatsCmd, documentsAddCmd, documentsRemoveCmd)
	rootCmd.AddCommand(documentsCmd)
}
