package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	return &Config{
		Provider:         ProviderOpenAI,
		ModelName:        DefaultModelName,
		EmbedderModel:    DefaultEmbedderModel,
		EmbedderDim:      VectorDimension,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "docent",
		PostgresDBName:   "docent",
		PostgresSSLMode:  "disable",
		MaxChunkSize:     DefaultMaxChunkSize,
		BoundaryFloor:    DefaultBoundaryFloor,
		ChunkConcurrency: 4,
		EmbedMaxAttempts: 4,
		EmbedBaseDelay:   500 * time.Millisecond,
		EmbedRatePerSec:  5,
		TopK:             10,
		MinSimilarity:    0,
		ContextMaxChars:  24000,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	assert.ErrorIs(t, cfg.Validate(), ErrConfigNil)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"unknown provider", func(c *Config) { c.Provider = "cohere" }, ErrInvalidProvider},
		{"empty embedder model", func(c *Config) { c.EmbedderModel = " " }, ErrInvalidEmbedderModel},
		{"wrong dimension", func(c *Config) { c.EmbedderDim = 768 }, ErrInvalidEmbedderDimension},
		{"zero chunk size", func(c *Config) { c.MaxChunkSize = 0 }, ErrInvalidChunkSize},
		{"oversized chunk size", func(c *Config) { c.MaxChunkSize = MaxAllowedChunkSize + 1 }, ErrInvalidChunkSize},
		{"floor at zero", func(c *Config) { c.BoundaryFloor = 0 }, ErrInvalidBoundaryFloor},
		{"floor at one", func(c *Config) { c.BoundaryFloor = 1 }, ErrInvalidBoundaryFloor},
		{"zero top-k", func(c *Config) { c.TopK = 0 }, ErrInvalidTopK},
		{"similarity above one", func(c *Config) { c.MinSimilarity = 1.5 }, ErrInvalidSimilarity},
		{"empty host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty dbname", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "s3cret with space"

	dsn := cfg.PostgresConnectionString()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "password='s3cret with space'")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestPostgresURL(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "p@ss/word"

	u := cfg.PostgresURL()
	assert.Contains(t, u, "postgres://")
	assert.Contains(t, u, "localhost:5432")
	// Special characters must be escaped so migrate can parse the URL.
	assert.NotContains(t, u, "p@ss/word")
}

func TestParseDatabaseURLOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://alice:pw@db.internal:6543/knowledge?sslmode=require")

	cfg := validConfig()
	require.NoError(t, cfg.parseDatabaseURL())

	assert.Equal(t, "db.internal", cfg.PostgresHost)
	assert.Equal(t, 6543, cfg.PostgresPort)
	assert.Equal(t, "alice", cfg.PostgresUser)
	assert.Equal(t, "pw", cfg.PostgresPassword)
	assert.Equal(t, "knowledge", cfg.PostgresDBName)
	assert.Equal(t, "require", cfg.PostgresSSLMode)
}

func TestParseDatabaseURLRejectsOtherSchemes(t *testing.T) {
	t.Setenv("DATABASE_URL", "mysql://root@localhost/db")

	cfg := validConfig()
	assert.Error(t, cfg.parseDatabaseURL())
}

func TestParseDatabaseURLAbsent(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg := validConfig()
	require.NoError(t, cfg.parseDatabaseURL())
	assert.Equal(t, "localhost", cfg.PostgresHost)
}
