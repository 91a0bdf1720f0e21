// Package metadata derives per-chunk descriptive attributes: a title, a
// summary and the structured tag map stored alongside the chunk.
//
// Titles and summaries come from a text-generation capability; when the
// capability fails or returns malformed output the extractor falls back to a
// deterministic title so that extraction never blocks ingestion.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docent-ai/docent/internal/document"
	"github.com/docent-ai/docent/internal/log"
)

// Required metadata keys present on every stored chunk.
const (
	KeySourceType  = "source_type"
	KeySource      = "source"
	KeyChunkNumber = "chunk_number"
	KeyIngestedAt  = "ingested_at"
)

// fallbackTitleLen bounds the deterministic title when no heading exists.
const fallbackTitleLen = 80

// Generator is the narrow text-generation capability the extractor depends
// on. The same interface backs answer assembly, so the pipeline carries no
// vendor-specific types.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Extracted holds the derived attributes for one chunk.
type Extracted struct {
	Title    string
	Summary  string
	Metadata map[string]string
}

// Extractor derives chunk titles, summaries and metadata.
type Extractor struct {
	gen    Generator
	logger log.Logger
	now    func() time.Time
}

// NewExtractor creates an Extractor. gen may be nil, in which case every
// chunk gets the deterministic fallback title and an empty summary.
func NewExtractor(gen Generator, logger log.Logger) *Extractor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Extractor{gen: gen, logger: logger, now: time.Now}
}

const titlePromptTemplate = `You are an AI that extracts titles and summaries from documentation chunks.
Return a JSON object with exactly two string keys: "title" and "summary".
For the first chunk of a document, derive the document title; for later
chunks, derive a descriptive section title. Keep both concise.

Document: %s
Chunk:
%s`

// generated is the JSON shape the generation capability is asked for.
type generated struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Extract derives title, summary and metadata for the chunk at the given
// position within doc. It never returns an error: generation failures
// degrade to the deterministic fallback.
func (e *Extractor) Extract(ctx context.Context, chunkText string, position int, doc document.Document) Extracted {
	meta := map[string]string{
		KeySourceType:  doc.SourceType,
		KeySource:      doc.Source,
		KeyChunkNumber: strconv.Itoa(position),
		KeyIngestedAt:  e.now().UTC().Format(time.RFC3339),
	}
	for k, v := range doc.Domain {
		meta[k] = v
	}

	title, summary := e.generate(ctx, chunkText, doc)
	if title == "" {
		title = fallbackTitle(chunkText, position, doc)
	}

	return Extracted{Title: title, Summary: summary, Metadata: meta}
}

// generate asks the capability for a title and summary. Empty return values
// signal the caller to fall back.
func (e *Extractor) generate(ctx context.Context, chunkText string, doc document.Document) (title, summary string) {
	if e.gen == nil {
		return "", ""
	}

	prompt := fmt.Sprintf(titlePromptTemplate, doc.Source, chunkText)
	out, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		e.logger.Debug("title generation failed, using fallback", "source", doc.Source, "error", err)
		return "", ""
	}

	var g generated
	if err := json.Unmarshal([]byte(stripCodeFence(out)), &g); err != nil {
		e.logger.Debug("title generation returned malformed JSON, using fallback",
			"source", doc.Source, "error", err)
		return "", ""
	}

	return strings.TrimSpace(g.Title), strings.TrimSpace(g.Summary)
}

var headingRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)

// fallbackTitle derives a deterministic title: the document title for the
// first chunk when available, else the first markdown heading, else the
// first characters of the chunk.
func fallbackTitle(chunkText string, position int, doc document.Document) string {
	if position == 0 && doc.Title != "" {
		return doc.Title
	}
	if m := headingRe.FindStringSubmatch(chunkText); m != nil {
		return strings.TrimSpace(m[1])
	}

	runes := []rune(strings.TrimSpace(chunkText))
	if len(runes) > fallbackTitleLen {
		return string(runes[:fallbackTitleLen]) + "..."
	}
	return string(runes)
}

// stripCodeFence removes a surrounding markdown code fence some models wrap
// JSON answers in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
