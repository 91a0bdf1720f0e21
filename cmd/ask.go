package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docent-ai/docent/internal/document"
	"github.com/docent-ai/docent/internal/knowledge"
)

var (
	askSources    bool
	askSourceType string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the ingested documentation",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askSources, "sources", false, "list the chunks the answer is grounded in")
	askCmd.Flags().StringVar(&askSourceType, "source-type", "", "restrict retrieval to 'web' or 'pdf'")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	question := strings.Join(args, " ")

	var opts []knowledge.SearchOption
	switch askSourceType {
	case "":
	case document.SourceTypeWeb, document.SourceTypePDF:
		opts = append(opts, knowledge.WithSourceTypes(askSourceType))
	default:
		return fmt.Errorf("invalid --source-type %q (want web or pdf)", askSourceType)
	}

	results, err := a.Retriever.Retrieve(ctx, question, opts...)
	if err != nil {
		return fmt.Errorf("retrieving context: %w", err)
	}

	reply, err := a.Assembler.Answer(ctx, question, results)
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}

	fmt.Println(reply)

	if askSources && len(results) > 0 {
		fmt.Println("\nSources:")
		for _, r := range results {
			fmt.Printf("  %.3f  %s #%d  %s\n",
				r.Similarity, r.Chunk.Source, r.Chunk.ChunkNumber, r.Chunk.Title)
		}
	}
	return nil
}
