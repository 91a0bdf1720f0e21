package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/docent-ai/docent/internal/chunker"
	"github.com/docent-ai/docent/internal/document"
	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/metadata"
)

// mockStore records upserts keyed by (source, chunk_number).
type mockStore struct {
	mu         sync.Mutex
	chunks     map[string]knowledge.Chunk
	upsertErr  func(chunk knowledge.Chunk) error
	pruneType  string
	pruneSrc   string
	pruneMax   int
	pruneCount int64
}

func newMockStore() *mockStore {
	return &mockStore{chunks: map[string]knowledge.Chunk{}}
}

func key(source string, n int) string {
	return source + "#" + string(rune('0'+n))
}

func (m *mockStore) Upsert(_ context.Context, chunk knowledge.Chunk) error {
	if m.upsertErr != nil {
		if err := m.upsertErr(chunk); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[key(chunk.Source, chunk.ChunkNumber)] = chunk
	return nil
}

func (m *mockStore) DeleteBeyond(_ context.Context, sourceType, source string, maxChunk int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneType = sourceType
	m.pruneSrc = source
	m.pruneMax = maxChunk
	return m.pruneCount, nil
}

// mockEmbedder fails for texts containing any configured marker.
type mockEmbedder struct {
	failOn string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.failOn != "" && strings.Contains(text, m.failOn) {
		return nil, errors.New("embedding failed")
	}
	return []float32{0.1, 0.2}, nil
}

// mockExtractor returns a fixed shape without calling any model.
type mockExtractor struct{}

func (mockExtractor) Extract(_ context.Context, chunkText string, position int, doc document.Document) metadata.Extracted {
	return metadata.Extracted{
		Title:    "chunk title",
		Summary:  "chunk summary",
		Metadata: map[string]string{"source": doc.Source},
	}
}

func testPipeline(store *mockStore, em Embedder) *Pipeline {
	// Equal-length paragraphs with max size 16 split one paragraph per
	// chunk, keeping chunk numbers predictable.
	return New(chunker.New(16), mockExtractor{}, em, store, 2, log.NewNop())
}

func fiveParagraphDoc() document.Document {
	return document.Document{
		Source:     "https://example.com/page",
		SourceType: document.SourceTypeWeb,
		Text: "sect 0 alpha.\n\nsect 1 alpha.\n\nsect 2 alpha.\n\n" +
			"sect 3 alpha.\n\nsect 4 alpha.",
	}
}

func TestIngestWritesAllChunks(t *testing.T) {
	store := newMockStore()
	p := testPipeline(store, &mockEmbedder{})

	report, err := p.Ingest(context.Background(), fiveParagraphDoc())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if report.ChunksTotal != 5 || report.ChunksWritten != 5 || report.ChunksFailed != 0 {
		t.Errorf("report = %+v", report)
	}
	for n := 0; n < 5; n++ {
		chunk, ok := store.chunks[key("https://example.com/page", n)]
		if !ok {
			t.Fatalf("chunk %d not written", n)
		}
		if chunk.Title != "chunk title" {
			t.Errorf("chunk %d Title = %q", n, chunk.Title)
		}
		if len(chunk.Embedding) == 0 {
			t.Errorf("chunk %d has no embedding", n)
		}
		if chunk.SourceType != document.SourceTypeWeb {
			t.Errorf("chunk %d SourceType = %q", n, chunk.SourceType)
		}
	}
}

func TestIngestIsolatesChunkFailure(t *testing.T) {
	store := newMockStore()
	p := testPipeline(store, &mockEmbedder{failOn: "sect 2"})

	report, err := p.Ingest(context.Background(), fiveParagraphDoc())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if report.ChunksWritten != 4 || report.ChunksFailed != 1 {
		t.Fatalf("report = %+v, want 4 written 1 failed", report)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0].Error(), "chunk 2") {
		t.Errorf("Errors = %v, want the failed chunk identified", report.Errors)
	}
	if _, ok := store.chunks[key("https://example.com/page", 2)]; ok {
		t.Error("failed chunk must not be written")
	}
	for _, n := range []int{0, 1, 3, 4} {
		if _, ok := store.chunks[key("https://example.com/page", n)]; !ok {
			t.Errorf("sibling chunk %d missing", n)
		}
	}
}

func TestIngestIsolatesStoreFailure(t *testing.T) {
	store := newMockStore()
	store.upsertErr = func(chunk knowledge.Chunk) error {
		if chunk.ChunkNumber == 1 {
			return errors.New("write failed")
		}
		return nil
	}
	p := testPipeline(store, &mockEmbedder{})

	report, err := p.Ingest(context.Background(), fiveParagraphDoc())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if report.ChunksWritten != 4 || report.ChunksFailed != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestIngestPrunesStaleTail(t *testing.T) {
	store := newMockStore()
	store.pruneCount = 3
	p := testPipeline(store, &mockEmbedder{})

	report, err := p.Ingest(context.Background(), fiveParagraphDoc())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if store.pruneMax != 5 {
		t.Errorf("pruned beyond %d, want the new chunk count 5", store.pruneMax)
	}
	if store.pruneType != document.SourceTypeWeb || store.pruneSrc != "https://example.com/page" {
		t.Errorf("prune target = (%s, %s)", store.pruneType, store.pruneSrc)
	}
	if report.Pruned != 3 {
		t.Errorf("report.Pruned = %d, want 3", report.Pruned)
	}
}

func TestIngestIdempotentReingestion(t *testing.T) {
	store := newMockStore()
	p := testPipeline(store, &mockEmbedder{})
	doc := fiveParagraphDoc()

	if _, err := p.Ingest(context.Background(), doc); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	first := make(map[string]string, len(store.chunks))
	for k, c := range store.chunks {
		first[k] = c.Content
	}

	if _, err := p.Ingest(context.Background(), doc); err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	if len(store.chunks) != len(first) {
		t.Fatalf("chunk count changed: %d -> %d", len(first), len(store.chunks))
	}
	for k, c := range store.chunks {
		if first[k] != c.Content {
			t.Errorf("chunk %s content changed on re-ingestion", k)
		}
	}
}

func TestIngestRejectsEmptyDocument(t *testing.T) {
	p := testPipeline(newMockStore(), &mockEmbedder{})

	_, err := p.Ingest(context.Background(), document.Document{
		Source: "https://example.com/blank",
		Text:   "   \n\n ",
	})
	if !errors.Is(err, document.ErrEmptyDocument) {
		t.Errorf("error = %v, want ErrEmptyDocument", err)
	}
}

func TestIngestAllSkipsEmptyAndAggregates(t *testing.T) {
	store := newMockStore()
	p := testPipeline(store, &mockEmbedder{})

	docs := []document.Document{
		fiveParagraphDoc(),
		{Source: "https://example.com/blank", SourceType: document.SourceTypeWeb, Text: " "},
		{Source: "https://example.com/short", SourceType: document.SourceTypeWeb, Text: "one para."},
	}

	batch, err := p.IngestAll(context.Background(), docs)
	if err != nil {
		t.Fatalf("IngestAll() error = %v", err)
	}

	if batch.Documents != 2 || batch.Skipped != 1 {
		t.Errorf("batch = %+v, want 2 documents 1 skipped", batch)
	}
	if batch.ChunksWritten != 6 {
		t.Errorf("ChunksWritten = %d, want 6", batch.ChunksWritten)
	}
}

func TestIngestAllStopsOnCancellation(t *testing.T) {
	store := newMockStore()
	p := testPipeline(store, &mockEmbedder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.IngestAll(ctx, []document.Document{fiveParagraphDoc()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(store.chunks) != 0 {
		t.Error("no chunks should be written after cancellation")
	}
}
