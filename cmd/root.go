// Package cmd implements the docent command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docent-ai/docent/internal/app"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/log"
)

var (
	verbose  bool
	jsonLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "docent",
	Short: "Documentation assistant with retrieval-augmented answers",
	Long: `Docent ingests documentation sites and PDF files into a vector store
and answers questions grounded in the ingested content.

Run 'docent ingest' to build the knowledge base, then 'docent ask' to
query it.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "write logs as JSON")
}

func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: jsonLogs})
}

// setupApp loads configuration and builds the application container.
func setupApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return app.Setup(ctx, cfg, newLogger())
}
