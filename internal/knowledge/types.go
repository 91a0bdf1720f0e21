package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Table names backing the two source types. Identifiers cannot be
// parameterized, so queries only accept these values.
const (
	TableSitePages = "site_pages"
	TablePDFPages  = "pdf_pages"
)

// Chunk is one stored unit of retrievable content. (Source, ChunkNumber)
// is the logical identity; ID is a surrogate key.
type Chunk struct {
	ID          uuid.UUID
	Source      string // URL for web pages, file path for PDFs
	SourceType  string // document.SourceTypeWeb or document.SourceTypePDF
	ChunkNumber int    // zero-based position within the source document
	Title       string
	Summary     string
	Content     string
	// AssociatedURL links a PDF chunk back to the site page it supports.
	// Always empty for web chunks.
	AssociatedURL string
	Metadata      map[string]string
	// Domain carries document-level tags for PDF chunks.
	Domain    map[string]string
	Embedding []float32
	CreatedAt time.Time
}

// Result pairs a chunk with its similarity to the query vector.
type Result struct {
	Chunk      Chunk
	Similarity float64 // cosine similarity, clamped to [0, 1]
}

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK          int
	filter        map[string]string
	minSimilarity float64
	sourceTypes   []string
	timeout       time.Duration
}

// WithTopK sets the maximum number of results to return. Default is 10.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithFilter adds a metadata equality filter. Multiple calls combine with
// AND logic via JSONB containment.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithMinSimilarity drops results scoring below the threshold. Default 0
// keeps everything.
func WithMinSimilarity(min float64) SearchOption {
	return func(c *searchConfig) {
		c.minSimilarity = min
	}
}

// WithSourceTypes restricts the search to the given source types. The
// default searches all tables.
func WithSourceTypes(types ...string) SearchOption {
	return func(c *searchConfig) {
		c.sourceTypes = types
	}
}

// WithTimeout bounds the whole search. Default is 10 seconds.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    10,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
