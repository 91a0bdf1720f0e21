// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (DOCENT_* runtime override, DATABASE_URL)
//  2. Config file (~/.docent/config.yaml)
//  3. Default values
//
// Main categories:
//   - AI: provider, generation model, embedder model and dimension
//   - Storage: PostgreSQL connection (see storage.go)
//   - Ingest: chunking limits, embedding retry/rate budget, concurrency
//   - Retrieval: result count, similarity threshold, context budget
//   - Crawler: allowed domains and entry points for the web loader
//
// Validation uses sentinel errors so callers can branch with errors.Is().
// A failed validation is the only fatal error class: it aborts the pipeline
// before any work starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates the embedder dimension does not
	// match the vector schema.
	ErrInvalidEmbedderDimension = errors.New("incompatible embedder dimension")

	// ErrInvalidChunkSize indicates the chunk size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidBoundaryFloor indicates the boundary floor is out of (0,1).
	ErrInvalidBoundaryFloor = errors.New("invalid boundary floor")

	// ErrInvalidTopK indicates the retrieval result count is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidSimilarity indicates the similarity threshold is out of [0,1].
	ErrInvalidSimilarity = errors.New("invalid similarity threshold")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

// Supported AI providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

const (
	// VectorDimension is the embedding dimension the pgvector schema is
	// declared with. The configured embedder must produce vectors of this
	// size; mismatches are rejected at validation time, not at insert time.
	VectorDimension = 1536

	// DefaultEmbedderModel matches the original corpus embeddings so that
	// re-ingestion stays in the same vector space.
	DefaultEmbedderModel = "text-embedding-3-small"

	// DefaultModelName is the generation model for titles, summaries and
	// answer assembly.
	DefaultModelName = "gpt-4o-mini"

	// DefaultMaxChunkSize bounds chunk content length in characters.
	DefaultMaxChunkSize = 5000

	// DefaultBoundaryFloor is the fraction of MaxChunkSize below which a
	// paragraph or sentence boundary is considered pathologically short.
	DefaultBoundaryFloor = 0.3

	// MaxAllowedChunkSize guards against configs that would defeat the
	// embedder's input limits.
	MaxAllowedChunkSize = 20000
)

// Config holds all application configuration.
type Config struct {
	// AI
	Provider      string `mapstructure:"provider" json:"provider"` // "gemini" (default), "openai", "ollama"
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDim   int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	OllamaHost    string `mapstructure:"ollama_host" json:"ollama_host"`

	// PostgreSQL
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDBName   string `mapstructure:"postgres_dbname" json:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgres_sslmode"`

	// Ingest
	MaxChunkSize     int           `mapstructure:"max_chunk_size" json:"max_chunk_size"`
	BoundaryFloor    float64       `mapstructure:"boundary_floor" json:"boundary_floor"`
	ChunkConcurrency int           `mapstructure:"chunk_concurrency" json:"chunk_concurrency"`
	EmbedMaxAttempts int           `mapstructure:"embed_max_attempts" json:"embed_max_attempts"`
	EmbedBaseDelay   time.Duration `mapstructure:"embed_base_delay" json:"embed_base_delay"`
	EmbedRatePerSec  float64       `mapstructure:"embed_rate_per_sec" json:"embed_rate_per_sec"`

	// Retrieval
	TopK            int     `mapstructure:"top_k" json:"top_k"`
	MinSimilarity   float64 `mapstructure:"min_similarity" json:"min_similarity"`
	ContextMaxChars int     `mapstructure:"context_max_chars" json:"context_max_chars"`

	// Crawler
	AllowedDomains   []string `mapstructure:"allowed_domains" json:"allowed_domains"`
	StartURLs        []string `mapstructure:"start_urls" json:"start_urls"`
	PDFDir           string   `mapstructure:"pdf_dir" json:"pdf_dir"`
	CrawlMaxDepth    int      `mapstructure:"crawl_max_depth" json:"crawl_max_depth"`
	CrawlParallelism int      `mapstructure:"crawl_parallelism" json:"crawl_parallelism"`

	// URLMapping associates a site URL with the filename patterns that
	// identify its supporting PDFs. PDFs whose name matches a pattern get
	// that URL as their associated page.
	URLMapping map[string][]string `mapstructure:"url_mapping" json:"url_mapping"`
}

// Load reads configuration from file and environment.
//
// A missing config file is not an error; defaults plus environment variables
// are enough for a working setup. A malformed config file is an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOCENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings. This is the
	// common single-variable form in cloud deployments.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// configDir returns the docent configuration directory, creating it if
// needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".docent")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedder_dimension", VectorDimension)
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "docent")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "docent")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("max_chunk_size", DefaultMaxChunkSize)
	v.SetDefault("boundary_floor", DefaultBoundaryFloor)
	v.SetDefault("chunk_concurrency", 4)
	v.SetDefault("embed_max_attempts", 4)
	v.SetDefault("embed_base_delay", 500*time.Millisecond)
	v.SetDefault("embed_rate_per_sec", 5.0)

	v.SetDefault("top_k", 10)
	v.SetDefault("min_similarity", 0.0)
	v.SetDefault("context_max_chars", 24000)

	v.SetDefault("allowed_domains", []string{})
	v.SetDefault("start_urls", []string{})
	v.SetDefault("pdf_dir", "")
	v.SetDefault("crawl_max_depth", 3)
	v.SetDefault("crawl_parallelism", 4)
	v.SetDefault("url_mapping", map[string][]string{})
}

// Validate checks the configuration for consistency. It returns the first
// violation found, wrapped around the matching sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (must be one of: gemini, openai, ollama)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDim != VectorDimension {
		return fmt.Errorf("%w: schema expects %d dimensions, got %d",
			ErrInvalidEmbedderDimension, VectorDimension, c.EmbedderDim)
	}

	if c.MaxChunkSize < 1 || c.MaxChunkSize > MaxAllowedChunkSize {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidChunkSize, MaxAllowedChunkSize, c.MaxChunkSize)
	}
	if c.BoundaryFloor <= 0 || c.BoundaryFloor >= 1 {
		return fmt.Errorf("%w: must be in (0,1), got %v", ErrInvalidBoundaryFloor, c.BoundaryFloor)
	}

	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("%w: must be in [0,1], got %v", ErrInvalidSimilarity, c.MinSimilarity)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}

	return nil
}
