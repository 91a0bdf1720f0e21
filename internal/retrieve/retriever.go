// Package retrieve turns a natural-language query into ranked context:
// embed the query, search the stored chunks, and assemble a bounded
// context window for answer generation.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docent-ai/docent/internal/document"
	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/log"
)

// ErrEmptyQuery marks a blank query string.
var ErrEmptyQuery = errors.New("empty query")

// Embedder converts the query text into a vector. It must be the same
// capability the corpus was ingested with or distances are meaningless.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the similarity search surface of the knowledge store.
type Searcher interface {
	Search(ctx context.Context, queryEmbedding []float32, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Retriever executes retrieval queries.
//
// Retriever is safe for concurrent use by multiple goroutines.
type Retriever struct {
	embedder      Embedder
	store         Searcher
	topK          int
	minSimilarity float64
	logger        log.Logger
}

// New creates a Retriever with default result limit and similarity floor.
// Both can be overridden per query via search options.
func New(embedder Embedder, store Searcher, topK int, minSimilarity float64, logger log.Logger) *Retriever {
	if topK <= 0 {
		topK = 10
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{
		embedder:      embedder,
		store:         store,
		topK:          topK,
		minSimilarity: minSimilarity,
		logger:        logger,
	}
}

// Retrieve embeds the query and returns the most similar stored chunks,
// ranked by descending similarity. An empty result with a nil error means
// the corpus holds nothing relevant; callers must treat that as a valid
// outcome, not a failure.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Defaults first so per-call options win.
	merged := append([]knowledge.SearchOption{
		knowledge.WithTopK(r.topK),
		knowledge.WithMinSimilarity(r.minSimilarity),
	}, opts...)

	results, err := r.store.Search(ctx, vec, merged...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	r.logger.Debug("retrieved context", "query_chars", len(query), "results", len(results))
	return results, nil
}

// contextSeparator divides chunks inside the assembled context window.
const contextSeparator = "\n\n---\n\n"

// ContextWindow assembles retrieved chunks into one prompt context of at
// most maxChars characters, preserving rank order and never splitting a
// chunk. A chunk that does not fit is dropped along with everything ranked
// below it; the top chunk is always included even when it alone exceeds
// the bound, so the answer stage never sees empty context while results
// exist. maxChars <= 0 disables the bound.
func ContextWindow(results []knowledge.Result, maxChars int) string {
	var b strings.Builder

	for i, res := range results {
		block := formatChunk(res.Chunk)
		projected := b.Len() + len(block)
		if i > 0 {
			projected += len(contextSeparator)
		}
		if maxChars > 0 && i > 0 && projected > maxChars {
			break
		}
		if i > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(block)
	}

	return b.String()
}

// formatChunk renders one chunk for the prompt. PDF chunks carry a source
// line so the model can attribute file-based content.
func formatChunk(c knowledge.Chunk) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(c.Title)
	b.WriteString("\n\n")
	if c.SourceType == document.SourceTypePDF {
		b.WriteString("Source: ")
		b.WriteString(c.Source)
		if c.AssociatedURL != "" {
			b.WriteString(" (supports ")
			b.WriteString(c.AssociatedURL)
			b.WriteString(")")
		}
		b.WriteString("\n\n")
	}
	b.WriteString(c.Content)
	return b.String()
}
