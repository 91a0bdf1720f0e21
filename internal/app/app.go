// Package app wires the application together: configuration, database,
// AI provider, and the ingestion and retrieval services built on them.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docent-ai/docent/internal/answer"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/embedding"
	"github.com/docent-ai/docent/internal/ingest"
	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/retrieve"
)

// App is the application container. Construct with Setup, release with
// Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder *embedding.Embedder
	DBPool   *pgxpool.Pool

	Store     *knowledge.Store
	Pipeline  *ingest.Pipeline
	Retriever *retrieve.Retriever
	Assembler *answer.Assembler

	dbCleanup func()
}

// Close releases all resources in reverse construction order.
func (a *App) Close() error {
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.Logger.Info("database pool closed")
	}
	return nil
}

// generator adapts genkit text generation onto the narrow Generator
// interface the metadata and answer packages consume.
type generator struct {
	g     *genkit.Genkit
	model string
}

func (gen *generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, gen.g,
		ai.WithModelName(gen.model),
		ai.WithPrompt("%s", prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating with %s: %w", gen.model, err)
	}
	return resp.Text(), nil
}

// qualifiedModelName prefixes the configured model with its genkit
// provider namespace unless the config already carries one.
func qualifiedModelName(provider, model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	switch provider {
	case config.ProviderOllama:
		return "ollama/" + model
	case config.ProviderOpenAI:
		return "openai/" + model
	default:
		return "googleai/" + model
	}
}
