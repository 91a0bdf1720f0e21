package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docent-ai/docent/internal/document"
	"github.com/docent-ai/docent/internal/ingest"
)

var (
	ingestPDFDir string
	ingestNoWeb  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Crawl documentation and index it into the knowledge base",
	Long: `Ingest crawls the configured documentation site, extracts PDF files
from the configured directory, and writes embedded chunks into PostgreSQL.

Re-running ingest is safe: unchanged chunks are overwritten in place and
stale chunks of shrunken documents are pruned.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestPDFDir, "pdf-dir", "", "PDF directory (overrides config)")
	ingestCmd.Flags().BoolVar(&ingestNoWeb, "no-web", false, "skip the web crawl")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var docs []document.Document

	if !ingestNoWeb && len(a.Config.StartURLs) > 0 {
		crawler := document.NewCrawler(document.CrawlConfig{
			StartURLs:      a.Config.StartURLs,
			AllowedDomains: a.Config.AllowedDomains,
			MaxDepth:       a.Config.CrawlMaxDepth,
			Parallelism:    a.Config.CrawlParallelism,
		}, a.Logger)

		webDocs, err := crawler.Crawl(ctx)
		if err != nil {
			return fmt.Errorf("crawling: %w", err)
		}
		docs = append(docs, webDocs...)
	}

	pdfDir := ingestPDFDir
	if pdfDir == "" {
		pdfDir = a.Config.PDFDir
	}
	if pdfDir != "" {
		loader := document.NewPDFLoader(nil, a.Config.URLMapping, a.Logger)
		pdfDocs, err := loader.LoadDir(ctx, pdfDir)
		if err != nil {
			return fmt.Errorf("loading PDFs: %w", err)
		}
		docs = append(docs, pdfDocs...)
	}

	if len(docs) == 0 {
		return fmt.Errorf("nothing to ingest: configure start_urls and/or pdf_dir")
	}

	batch, err := a.Pipeline.IngestAll(ctx, docs)
	if err != nil {
		return fmt.Errorf("ingesting: %w", err)
	}

	printBatchReport(batch)
	return nil
}

func printBatchReport(batch *ingest.BatchReport) {
	fmt.Printf("Ingested %d documents (%d skipped)\n", batch.Documents, batch.Skipped)
	fmt.Printf("  chunks written: %d\n", batch.ChunksWritten)
	fmt.Printf("  chunks failed:  %d\n", batch.ChunksFailed)

	for _, r := range batch.Reports {
		if len(r.Errors) == 0 {
			continue
		}
		fmt.Printf("  %s:\n", r.Source)
		for _, err := range r.Errors {
			fmt.Printf("    - %v\n", err)
		}
	}
}
