// Package ingest runs the document ingestion pipeline: split into chunks,
// derive metadata, embed, and persist. Failures are isolated per chunk so
// one bad chunk never discards its siblings.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/docent-ai/docent/internal/chunker"
	"github.com/docent-ai/docent/internal/document"
	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/metadata"
)

// Store is the persistence surface the pipeline writes to.
type Store interface {
	Upsert(ctx context.Context, chunk knowledge.Chunk) error
	DeleteBeyond(ctx context.Context, sourceType, source string, maxChunk int) (int64, error)
}

// Embedder converts chunk text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Extractor derives per-chunk title, summary and metadata.
type Extractor interface {
	Extract(ctx context.Context, chunkText string, position int, doc document.Document) metadata.Extracted
}

// Report summarizes the ingestion of one document.
type Report struct {
	Source        string
	ChunksTotal   int
	ChunksWritten int
	ChunksFailed  int
	Pruned        int64 // stale tail chunks removed after shrink
	Errors        []error
}

// BatchReport summarizes an IngestAll run.
type BatchReport struct {
	Documents     int
	Skipped       int // documents with no usable text
	ChunksWritten int
	ChunksFailed  int
	Reports       []Report
}

// Pipeline ingests documents into the knowledge store.
//
// Pipeline is safe for concurrent use by multiple goroutines.
type Pipeline struct {
	chunker     *chunker.Chunker
	extractor   Extractor
	embedder    Embedder
	store       Store
	concurrency int
	logger      log.Logger
	now         func() time.Time
}

// New creates a Pipeline. concurrency bounds parallel chunk processing
// within one document; values below 1 select 4.
func New(ch *chunker.Chunker, ex Extractor, em Embedder, st Store, concurrency int, logger log.Logger) *Pipeline {
	if concurrency < 1 {
		concurrency = 4
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{
		chunker:     ch,
		extractor:   ex,
		embedder:    em,
		store:       st,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// Ingest processes one document end to end. Chunks are processed with
// bounded concurrency; a chunk that fails to embed or store is reported
// and skipped while its siblings proceed. After all chunks are written the
// stale tail beyond the new chunk count is pruned, so a document that
// shrank since its last ingestion leaves no orphans.
//
// Re-ingesting an unchanged document is idempotent: every write replaces
// the row keyed by (source, chunk_number).
func (p *Pipeline) Ingest(ctx context.Context, doc document.Document) (*Report, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%s: %w", doc.Source, document.ErrEmptyDocument)
	}

	chunks := p.chunker.Split(doc.Text)
	report := &Report{Source: doc.Source, ChunksTotal: len(chunks)}

	var mu sync.Mutex
	fail := func(i int, err error) {
		mu.Lock()
		report.ChunksFailed++
		report.Errors = append(report.Errors, fmt.Errorf("chunk %d of %s: %w", i, doc.Source, err))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, text := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			extracted := p.extractor.Extract(gctx, text, i, doc)

			vec, err := p.embedder.Embed(gctx, text)
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				fail(i, err)
				return nil
			}

			chunk := knowledge.Chunk{
				ID:            uuid.New(),
				Source:        doc.Source,
				SourceType:    doc.SourceType,
				ChunkNumber:   i,
				Title:         extracted.Title,
				Summary:       extracted.Summary,
				Content:       text,
				AssociatedURL: doc.AssociatedURL,
				Metadata:      extracted.Metadata,
				Domain:        doc.Domain,
				Embedding:     vec,
				CreatedAt:     p.now().UTC(),
			}
			if err := p.store.Upsert(gctx, chunk); err != nil {
				if gctx.Err() != nil {
					return err
				}
				fail(i, err)
				return nil
			}

			mu.Lock()
			report.ChunksWritten++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	pruned, err := p.store.DeleteBeyond(ctx, doc.SourceType, doc.Source, len(chunks))
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("prune %s: %w", doc.Source, err))
	} else {
		report.Pruned = pruned
	}

	p.logger.Info("ingested document",
		"source", doc.Source,
		"chunks", report.ChunksTotal,
		"written", report.ChunksWritten,
		"failed", report.ChunksFailed,
		"pruned", report.Pruned)
	return report, nil
}

// IngestAll processes documents sequentially, checking for cancellation
// between documents. Documents with no usable text are counted as skipped;
// other per-document failures are recorded and the batch continues. Only
// cancellation aborts the run.
func (p *Pipeline) IngestAll(ctx context.Context, docs []document.Document) (*BatchReport, error) {
	batch := &BatchReport{}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		report, err := p.Ingest(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return batch, err
			}
			if errors.Is(err, document.ErrEmptyDocument) {
				p.logger.Warn("skipping empty document", "source", doc.Source)
				batch.Skipped++
				continue
			}
			batch.Reports = append(batch.Reports, Report{
				Source: doc.Source,
				Errors: []error{err},
			})
			continue
		}

		batch.Documents++
		batch.ChunksWritten += report.ChunksWritten
		batch.ChunksFailed += report.ChunksFailed
		batch.Reports = append(batch.Reports, *report)
	}

	return batch, nil
}
