// Package knowledge persists embedded documentation chunks in PostgreSQL
// with pgvector and serves filtered similarity search over them.
//
// Web chunks and PDF chunks live in separate tables; Search queries both
// and merges the rankings deterministically.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/docent-ai/docent/internal/document"
	"github.com/docent-ai/docent/internal/log"
)

// Querier defines the database operations the Store depends on. The
// interface is defined by the consumer so tests can substitute a mock;
// PgxQuerier is the production implementation.
type Querier interface {
	// UpsertChunk inserts or replaces the chunk keyed by (source, chunk_number).
	UpsertChunk(ctx context.Context, table string, arg UpsertChunkParams) error

	// SearchChunks performs vector similarity search over one table.
	SearchChunks(ctx context.Context, table string, arg SearchChunksParams) ([]ChunkRow, error)

	// DeleteChunksBeyond removes chunks of source numbered >= maxChunk.
	DeleteChunksBeyond(ctx context.Context, table, source string, maxChunk int) (int64, error)

	// ListSources returns the distinct sources in a table, sorted.
	ListSources(ctx context.Context, table string) ([]string, error)

	// SourceChunks returns every chunk of one source ordered by chunk number.
	SourceChunks(ctx context.Context, table, source string) ([]ChunkRow, error)

	// CountChunks counts the rows in a table.
	CountChunks(ctx context.Context, table string) (int64, error)
}

// Store manages embedded documentation chunks.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries Querier
	logger  log.Logger
}

// NewStore creates a Store over the given querier. logger may be nil.
func NewStore(queries Querier, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{queries: queries, logger: logger}
}

// tableFor maps a source type onto its backing table.
func tableFor(sourceType string) (string, error) {
	switch sourceType {
	case document.SourceTypeWeb:
		return TableSitePages, nil
	case document.SourceTypePDF:
		return TablePDFPages, nil
	default:
		return "", fmt.Errorf("unknown source type %q", sourceType)
	}
}

// Upsert writes one chunk, replacing any prior chunk with the same
// (source, chunk_number). The write is idempotent, so a transient failure
// is retried once before giving up.
func (s *Store) Upsert(ctx context.Context, chunk Chunk) error {
	table, err := tableFor(chunk.SourceType)
	if err != nil {
		return err
	}

	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for %s#%d: %w", chunk.Source, chunk.ChunkNumber, err)
	}
	var domainJSON []byte
	if chunk.Domain != nil {
		if domainJSON, err = json.Marshal(chunk.Domain); err != nil {
			return fmt.Errorf("marshal domain for %s#%d: %w", chunk.Source, chunk.ChunkNumber, err)
		}
	}

	embedding := pgvector.NewVector(chunk.Embedding)
	arg := UpsertChunkParams{
		ID:            chunk.ID,
		Source:        chunk.Source,
		ChunkNumber:   chunk.ChunkNumber,
		Title:         chunk.Title,
		Summary:       chunk.Summary,
		Content:       chunk.Content,
		AssociatedURL: chunk.AssociatedURL,
		Metadata:      metadataJSON,
		Domain:        domainJSON,
		Embedding:     &embedding,
		CreatedAt: pgtype.Timestamptz{
			Time:  chunk.CreatedAt,
			Valid: !chunk.CreatedAt.IsZero(),
		},
	}

	if err := s.queries.UpsertChunk(ctx, table, arg); err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.logger.Warn("chunk upsert failed, retrying once",
			"source", chunk.Source, "chunk", chunk.ChunkNumber, "error", err)
		if err := s.queries.UpsertChunk(ctx, table, arg); err != nil {
			return fmt.Errorf("upsert %s#%d: %w", chunk.Source, chunk.ChunkNumber, err)
		}
	}

	s.logger.Debug("upserted chunk",
		"table", table, "source", chunk.Source, "chunk", chunk.ChunkNumber)
	return nil
}

// Search finds the chunks most similar to the query vector across the
// selected tables and returns them ranked by descending similarity, ties
// broken by ascending chunk number. The ranking is deterministic for a
// fixed stored corpus.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var filterJSON []byte
	if len(cfg.filter) > 0 {
		var err error
		if filterJSON, err = json.Marshal(cfg.filter); err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
	}

	sourceTypes := cfg.sourceTypes
	if len(sourceTypes) == 0 {
		sourceTypes = []string{document.SourceTypeWeb, document.SourceTypePDF}
	}

	vec := pgvector.NewVector(queryEmbedding)
	arg := SearchChunksParams{
		QueryEmbedding: &vec,
		FilterMetadata: filterJSON,
		MinSimilarity:  cfg.minSimilarity,
		ResultLimit:    cfg.topK,
	}

	var results []Result
	for _, st := range sourceTypes {
		table, err := tableFor(st)
		if err != nil {
			return nil, err
		}
		rows, err := s.queries.SearchChunks(queryCtx, table, arg)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", table, err)
		}
		for _, row := range rows {
			results = append(results, s.rowToResult(row, st))
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Chunk.ChunkNumber < results[j].Chunk.ChunkNumber
	})
	if len(results) > cfg.topK {
		results = results[:cfg.topK]
	}
	return results, nil
}

// DeleteBeyond prunes chunks of source numbered maxChunk or higher. Used
// after re-ingestion when a document shrank, so stale tail chunks never
// survive.
func (s *Store) DeleteBeyond(ctx context.Context, sourceType, source string, maxChunk int) (int64, error) {
	table, err := tableFor(sourceType)
	if err != nil {
		return 0, err
	}
	n, err := s.queries.DeleteChunksBeyond(ctx, table, source, maxChunk)
	if err != nil {
		return 0, fmt.Errorf("prune %s beyond %d: %w", source, maxChunk, err)
	}
	if n > 0 {
		s.logger.Debug("pruned stale chunks", "source", source, "deleted", n)
	}
	return n, nil
}

// ListSources returns the distinct sources of one source type, sorted.
func (s *Store) ListSources(ctx context.Context, sourceType string) ([]string, error) {
	table, err := tableFor(sourceType)
	if err != nil {
		return nil, err
	}
	sources, err := s.queries.ListSources(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list sources in %s: %w", table, err)
	}
	return sources, nil
}

// SourceContent reassembles the full text of one source from its stored
// chunks, ordered by chunk number. The first chunk's title heads the
// output. Returns empty output when the source is unknown.
func (s *Store) SourceContent(ctx context.Context, sourceType, source string) (string, error) {
	table, err := tableFor(sourceType)
	if err != nil {
		return "", err
	}
	rows, err := s.queries.SourceChunks(ctx, table, source)
	if err != nil {
		return "", fmt.Errorf("load chunks of %s: %w", source, err)
	}
	if len(rows) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(rows[0].Title)
	b.WriteString("\n\n")
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(row.Content)
	}
	return b.String(), nil
}

// Count returns the total number of stored chunks of one source type.
func (s *Store) Count(ctx context.Context, sourceType string) (int, error) {
	table, err := tableFor(sourceType)
	if err != nil {
		return 0, err
	}
	n, err := s.queries.CountChunks(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	if n > math.MaxInt {
		return 0, fmt.Errorf("chunk count %d exceeds platform int capacity", n)
	}
	return int(n), nil
}

// rowToResult converts a database row into a Result, tolerating malformed
// stored JSON.
func (s *Store) rowToResult(row ChunkRow, sourceType string) Result {
	var metadata map[string]string
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("malformed stored metadata", "id", row.ID, "error", err)
		}
	}
	if metadata == nil {
		metadata = make(map[string]string)
	}

	var domain map[string]string
	if len(row.Domain) > 0 {
		if err := json.Unmarshal(row.Domain, &domain); err != nil {
			s.logger.Warn("malformed stored domain tags", "id", row.ID, "error", err)
		}
	}

	var createdAt time.Time
	if row.CreatedAt.Valid {
		createdAt = row.CreatedAt.Time
	}

	return Result{
		Chunk: Chunk{
			ID:            row.ID,
			Source:        row.Source,
			SourceType:    sourceType,
			ChunkNumber:   row.ChunkNumber,
			Title:         row.Title,
			Summary:       row.Summary,
			Content:       row.Content,
			AssociatedURL: row.AssociatedURL,
			Metadata:      metadata,
			Domain:        domain,
			CreatedAt:     createdAt,
		},
		Similarity: clampSimilarity(row.Similarity),
	}
}

// clampSimilarity bounds a cosine similarity into [0, 1]. Floating point
// distance arithmetic can stray slightly outside the range.
func clampSimilarity(sim float64) float64 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
