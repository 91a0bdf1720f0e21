// Package answer turns retrieved context and a question into a grounded
// reply. The model is instructed to answer only from the supplied context;
// with no context at all it is never called.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/retrieve"
)

// NoContextReply is returned verbatim when retrieval produced nothing.
// Asking for clarification beats inventing an unsourced answer.
const NoContextReply = "I couldn't find specific content about that in the " +
	"documentation. Could you clarify what aspect you're interested in, or " +
	"try rephrasing the question?"

// Generator is the narrow text-generation capability the assembler needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const promptTemplate = `You are a documentation assistant. Answer the question using ONLY the
documentation excerpts below. Never invent content that is not in the
excerpts; if they do not cover the question, say so and ask for
clarification. Cite the excerpt titles you relied on.

Documentation:
%s

Question: %s`

// Assembler produces answers from retrieved context.
type Assembler struct {
	gen             Generator
	maxContextChars int
	logger          log.Logger
}

// New creates an Assembler. maxContextChars bounds the assembled context;
// zero disables the bound.
func New(gen Generator, maxContextChars int, logger log.Logger) *Assembler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Assembler{gen: gen, maxContextChars: maxContextChars, logger: logger}
}

// Answer generates a reply to question grounded in results. Empty results
// short-circuit to NoContextReply without touching the model.
func (a *Assembler) Answer(ctx context.Context, question string, results []knowledge.Result) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", retrieve.ErrEmptyQuery
	}
	if len(results) == 0 {
		a.logger.Debug("no retrieved context, returning canned reply")
		return NoContextReply, nil
	}

	contextText := retrieve.ContextWindow(results, a.maxContextChars)
	prompt := fmt.Sprintf(promptTemplate, contextText, question)

	out, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(out), nil
}
