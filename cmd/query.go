package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/darasa-ai/darasa/internal/index"
)

var (
	querySubject   string
	queryLevel     string
	queryLimit     int
	queryThreshold float64
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Run a hybrid retrieval query against the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		retriever := index.NewRetriever(e.store, e.embedder, e.logger)
		question := strings.Join(args, " ")

		opts := []index.RetrieveOption{
			index.WithLimit(queryLimit),
			index.WithThreshold(queryThreshold),
		}
		if querySubject != "" {
			opts = append(opts, index.WithSubject(querySubject))
		}
		if queryLevel != "" {
			opts = append(opts, index.WithLevel(queryLevel))
		}

		results, err := retriever.Retrieve(ctx, question, opts...)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No curriculum content matched the query.")
			return nil
		}

		for i, r := range results {
			fmt.Printf("%d. [%s / %s] score=%.3f similarity=%.3f\n",
				i+1, orDash(r.Subject), orDash(r.Level), r.FinalScore, r.Similarity)
			if r.SourcePage != "" {
				fmt.Printf("   document %s, page %s\n", r.DocumentID, r.SourcePage)
			} else {
				fmt.Printf("   document %s\n", r.DocumentID)
			}
			fmt.Printf("   %s\n\n", snippet(r.Content, 240))
		}
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func init() {
	queryCmd.Flags().StringVar(&querySubject, "subject", "", "prefer chunks from this subject")
	queryCmd.Flags().StringVar(&queryLevel, "level", "", "prefer chunks from this level (e.g. \"Form 2\")")
	queryCmd.Flags().IntVar(&queryLimit, "limit", index.DefaultLimit, "maximum number of results")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", index.DefaultThreshold, "minimum similarity")
	rootCmd.AddCommand(queryCmd)
}
