package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// DBTX is the subset of pgxpool.Pool the querier needs. pgx.Tx satisfies
// it too, so queries can run inside a transaction unchanged.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpsertChunkParams carries one chunk write. AssociatedURL and Domain are
// only stored for the PDF table.
type UpsertChunkParams struct {
	ID            uuid.UUID
	Source        string
	ChunkNumber   int
	Title         string
	Summary       string
	Content       string
	AssociatedURL string
	Metadata      []byte
	Domain        []byte
	Embedding     *pgvector.Vector
	CreatedAt     pgtype.Timestamptz
}

// SearchChunksParams carries one similarity search. A nil FilterMetadata
// disables metadata filtering.
type SearchChunksParams struct {
	QueryEmbedding *pgvector.Vector
	FilterMetadata []byte
	MinSimilarity  float64
	ResultLimit    int
}

// ChunkRow is one database row. Metadata and Domain stay raw JSON; the
// Store decodes them.
type ChunkRow struct {
	ID            uuid.UUID
	Source        string
	ChunkNumber   int
	Title         string
	Summary       string
	Content       string
	AssociatedURL string
	Metadata      []byte
	Domain        []byte
	CreatedAt     pgtype.Timestamptz
	Similarity    float64
}

// PgxQuerier implements Querier over PostgreSQL. Table names cannot be
// bound as query parameters, so every method validates the table argument
// against the two known tables before splicing it into SQL.
type PgxQuerier struct {
	db DBTX
}

// NewQuerier creates a PgxQuerier over a pool or transaction.
func NewQuerier(db DBTX) *PgxQuerier {
	return &PgxQuerier{db: db}
}

func validateTable(table string) error {
	if table != TableSitePages && table != TablePDFPages {
		return fmt.Errorf("unknown table %q", table)
	}
	return nil
}

const upsertSiteSQL = `
INSERT INTO site_pages (id, source, chunk_number, title, summary, content, metadata, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
ON CONFLICT (source, chunk_number) DO UPDATE SET
	title = EXCLUDED.title,
	summary = EXCLUDED.summary,
	content = EXCLUDED.content,
	metadata = EXCLUDED.metadata,
	embedding = EXCLUDED.embedding,
	created_at = EXCLUDED.created_at`

const upsertPDFSQL = `
INSERT INTO pdf_pages (id, source, chunk_number, title, summary, content, associated_url, metadata, domain, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()))
ON CONFLICT (source, chunk_number) DO UPDATE SET
	title = EXCLUDED.title,
	summary = EXCLUDED.summary,
	content = EXCLUDED.content,
	associated_url = EXCLUDED.associated_url,
	metadata = EXCLUDED.metadata,
	domain = EXCLUDED.domain,
	embedding = EXCLUDED.embedding,
	created_at = EXCLUDED.created_at`

func (q *PgxQuerier) UpsertChunk(ctx context.Context, table string, arg UpsertChunkParams) error {
	if err := validateTable(table); err != nil {
		return err
	}

	if table == TablePDFPages {
		_, err := q.db.Exec(ctx, upsertPDFSQL,
			arg.ID, arg.Source, arg.ChunkNumber, arg.Title, arg.Summary,
			arg.Content, arg.AssociatedURL, arg.Metadata, arg.Domain,
			arg.Embedding, arg.CreatedAt)
		return err
	}
	_, err := q.db.Exec(ctx, upsertSiteSQL,
		arg.ID, arg.Source, arg.ChunkNumber, arg.Title, arg.Summary,
		arg.Content, arg.Metadata, arg.Embedding, arg.CreatedAt)
	return err
}

// searchSQL ranks by cosine distance; similarity is 1 - distance. The
// JSONB containment filter and the similarity floor apply before LIMIT.
const searchSiteSQL = `
SELECT id, source, chunk_number, title, summary, content, metadata, created_at,
	1 - (embedding <=> $1) AS similarity
FROM site_pages
WHERE ($2::jsonb IS NULL OR metadata @> $2::jsonb)
	AND 1 - (embedding <=> $1) >= $3
ORDER BY embedding <=> $1 ASC, chunk_number ASC
LIMIT $4`

const searchPDFSQL = `
SELECT id, source, chunk_number, title, summary, content, associated_url, metadata, domain, created_at,
	1 - (embedding <=> $1) AS similarity
FROM pdf_pages
WHERE ($2::jsonb IS NULL OR metadata @> $2::jsonb)
	AND 1 - (embedding <=> $1) >= $3
ORDER BY embedding <=> $1 ASC, chunk_number ASC
LIMIT $4`

func (q *PgxQuerier) SearchChunks(ctx context.Context, table string, arg SearchChunksParams) ([]ChunkRow, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	sql := searchSiteSQL
	if table == TablePDFPages {
		sql = searchPDFSQL
	}
	rows, err := q.db.Query(ctx, sql,
		arg.QueryEmbedding, arg.FilterMetadata, arg.MinSimilarity, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkRow
	for rows.Next() {
		var r ChunkRow
		if table == TablePDFPages {
			err = rows.Scan(&r.ID, &r.Source, &r.ChunkNumber, &r.Title, &r.Summary,
				&r.Content, &r.AssociatedURL, &r.Metadata, &r.Domain, &r.CreatedAt, &r.Similarity)
		} else {
			err = rows.Scan(&r.ID, &r.Source, &r.ChunkNumber, &r.Title, &r.Summary,
				&r.Content, &r.Metadata, &r.CreatedAt, &r.Similarity)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *PgxQuerier) DeleteChunksBeyond(ctx context.Context, table, source string, maxChunk int) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}
	tag, err := q.db.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE source = $1 AND chunk_number >= $2`, table),
		source, maxChunk)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *PgxQuerier) ListSources(ctx context.Context, table string) ([]string, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx,
		fmt.Sprintf(`SELECT DISTINCT source FROM %s ORDER BY source`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (q *PgxQuerier) SourceChunks(ctx context.Context, table, source string) ([]ChunkRow, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	var sql string
	if table == TablePDFPages {
		sql = `SELECT id, source, chunk_number, title, summary, content, associated_url, metadata, domain, created_at
FROM pdf_pages WHERE source = $1 ORDER BY chunk_number ASC`
	} else {
		sql = `SELECT id, source, chunk_number, title, summary, content, metadata, created_at
FROM site_pages WHERE source = $1 ORDER BY chunk_number ASC`
	}
	rows, err := q.db.Query(ctx, sql, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkRow
	for rows.Next() {
		var r ChunkRow
		if table == TablePDFPages {
			err = rows.Scan(&r.ID, &r.Source, &r.ChunkNumber, &r.Title, &r.Summary,
				&r.Content, &r.AssociatedURL, &r.Metadata, &r.Domain, &r.CreatedAt)
		} else {
			err = rows.Scan(&r.ID, &r.Source, &r.ChunkNumber, &r.Title, &r.Summary,
				&r.Content, &r.Metadata, &r.CreatedAt)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *PgxQuerier) CountChunks(ctx context.Context, table string) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}
	var n int64
	err := q.db.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table)).Scan(&n)
	return n, err
}
