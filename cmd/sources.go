package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docent-ai/docent/internal/document"
)

var sourcesShowContent string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested documentation sources",
	RunE:  runSources,
}

func init() {
	sourcesCmd.Flags().StringVar(&sourcesShowContent, "content", "", "print the reassembled content of one source")
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if sourcesShowContent != "" {
		// The source decides its own type by where it was found.
		for _, st := range []string{document.SourceTypeWeb, document.SourceTypePDF} {
			content, err := a.Store.SourceContent(ctx, st, sourcesShowContent)
			if err != nil {
				return fmt.Errorf("loading content: %w", err)
			}
			if content != "" {
				fmt.Println(content)
				return nil
			}
		}
		return fmt.Errorf("source %q not found", sourcesShowContent)
	}

	for _, st := range []string{document.SourceTypeWeb, document.SourceTypePDF} {
		sources, err := a.Store.ListSources(ctx, st)
		if err != nil {
			return fmt.Errorf("listing %s sources: %w", st, err)
		}
		if len(sources) == 0 {
			continue
		}
		fmt.Printf("%s (%d):\n", st, len(sources))
		for _, s := range sources {
			fmt.Printf("  %s\n", s)
		}
	}
	return nil
}
