package retrieve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docent-ai/docent/internal/document"
	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/log"
)

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

type mockSearcher struct {
	results []knowledge.Result
	err     error
	gotVec  []float32
	calls   int
}

func (m *mockSearcher) Search(_ context.Context, vec []float32, _ ...knowledge.SearchOption) ([]knowledge.Result, error) {
	m.calls++
	m.gotVec = vec
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func rankedResults() []knowledge.Result {
	return []knowledge.Result{
		{Chunk: knowledge.Chunk{Title: "First", Content: "top ranked", SourceType: document.SourceTypeWeb}, Similarity: 0.9},
		{Chunk: knowledge.Chunk{Title: "Second", Content: "runner up", SourceType: document.SourceTypeWeb}, Similarity: 0.6},
	}
}

func TestRetrievePassesQueryEmbedding(t *testing.T) {
	em := &mockEmbedder{vec: []float32{0.7, 0.8}}
	st := &mockSearcher{results: rankedResults()}
	r := New(em, st, 5, 0, log.NewNop())

	results, err := r.Retrieve(context.Background(), "how do trials work?")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 2 || results[0].Chunk.Title != "First" {
		t.Errorf("results = %+v", results)
	}
	if len(st.gotVec) != 2 || st.gotVec[0] != 0.7 {
		t.Errorf("search used vec %v, want the query embedding", st.gotVec)
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	r := New(&mockEmbedder{}, &mockSearcher{}, 5, 0, log.NewNop())

	if _, err := r.Retrieve(context.Background(), "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("error = %v, want ErrEmptyQuery", err)
	}
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	boom := errors.New("embedding down")
	r := New(&mockEmbedder{err: boom}, &mockSearcher{}, 5, 0, log.NewNop())

	if _, err := r.Retrieve(context.Background(), "query"); !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
}

func TestRetrieveEmptyStoreIsNotAnError(t *testing.T) {
	r := New(&mockEmbedder{vec: []float32{1}}, &mockSearcher{}, 5, 0, log.NewNop())

	results, err := r.Retrieve(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want empty", results)
	}
}

func TestRetrieveDeterministic(t *testing.T) {
	em := &mockEmbedder{vec: []float32{1}}
	st := &mockSearcher{results: rankedResults()}
	r := New(em, st, 5, 0, log.NewNop())

	a, _ := r.Retrieve(context.Background(), "q")
	b, _ := r.Retrieve(context.Background(), "q")
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Chunk.Title != b[i].Chunk.Title || a[i].Similarity != b[i].Similarity {
			t.Errorf("rank %d differs between identical queries", i)
		}
	}
}

func TestContextWindowPreservesRankOrder(t *testing.T) {
	got := ContextWindow(rankedResults(), 0)

	first := strings.Index(got, "top ranked")
	second := strings.Index(got, "runner up")
	if first < 0 || second < 0 || first > second {
		t.Errorf("rank order lost:\n%s", got)
	}
	if !strings.Contains(got, contextSeparator) {
		t.Error("chunks must be separated")
	}
}

func TestContextWindowBound(t *testing.T) {
	results := rankedResults()
	// Bound large enough for the first formatted chunk only.
	limit := len("# First\n\ntop ranked") + 5

	got := ContextWindow(results, limit)
	if !strings.Contains(got, "top ranked") {
		t.Error("top chunk missing")
	}
	if strings.Contains(got, "runner up") {
		t.Error("second chunk should be dropped by the bound")
	}
}

func TestContextWindowNeverSplitsChunk(t *testing.T) {
	results := []knowledge.Result{
		{Chunk: knowledge.Chunk{Title: "Big", Content: strings.Repeat("x", 500)}, Similarity: 0.9},
	}

	got := ContextWindow(results, 50)
	if !strings.Contains(got, strings.Repeat("x", 500)) {
		t.Error("top chunk must be included whole even when oversized")
	}
}

func TestContextWindowEmptyResults(t *testing.T) {
	if got := ContextWindow(nil, 100); got != "" {
		t.Errorf("ContextWindow(nil) = %q, want empty", got)
	}
}

func TestContextWindowPDFAttribution(t *testing.T) {
	results := []knowledge.Result{
		{Chunk: knowledge.Chunk{
			Title:         "Handbook",
			Content:       "pdf content",
			Source:        "docs/handbook.pdf",
			SourceType:    document.SourceTypePDF,
			AssociatedURL: "https://example.com/clinical-trials",
		}, Similarity: 0.8},
	}

	got := ContextWindow(results, 0)
	if !strings.Contains(got, "docs/handbook.pdf") {
		t.Error("PDF source missing from context")
	}
	if !strings.Contains(got, "https://example.com/clinical-trials") {
		t.Error("associated URL missing from context")
	}
}
