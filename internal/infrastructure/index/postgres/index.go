package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
)

// Index backs all three retrieval ports with one postgres database:
// pgvector for nearest-neighbor search, tsvector for keyword ranking,
// and the chunks table itself as the chunk store.
type Index struct {
	db       *sql.DB
	embedder ports.Embedder
}

func NewIndex(db *sql.DB, embedder ports.Embedder) *Index {
	return &Index{db: db, embedder: embedder}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (i *Index) EnsureSchema(ctx context.Context, embeddingDim int) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/eval startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026030801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS research_chunks (
	chunk_id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	section TEXT NOT NULL,
	seq INTEGER NOT NULL,
	page_start INTEGER NOT NULL DEFAULT 0,
	page_end INTEGER NOT NULL DEFAULT 0,
	chunk_text TEXT NOT NULL,
	embedding vector(%d) NOT NULL,
	tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', chunk_text)) STORED,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_research_chunks_source ON research_chunks(source_id, section, seq);
CREATE INDEX IF NOT EXISTS idx_research_chunks_tsv ON research_chunks USING GIN (tsv);
`, embeddingDim)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// UpsertChunk writes one chunk and its embedding, used at ingestion time.
func (i *Index) UpsertChunk(ctx context.Context, chunk *domain.StoredChunk, embedding []float32) error {
	_, err := i.db.ExecContext(ctx, `
INSERT INTO research_chunks (chunk_id, source_id, section, seq, page_start, page_end, chunk_text, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (chunk_id) DO UPDATE
SET chunk_text = EXCLUDED.chunk_text, embedding = EXCLUDED.embedding
`,
		chunk.ChunkID, chunk.SourceID, chunk.Section, chunkSeq(chunk.ChunkID),
		chunk.PageStart, chunk.PageEnd, chunk.Text, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

// IndexChunks ensures the schema for the batch's embedding width and
// upserts every chunk.
func (i *Index) IndexChunks(ctx context.Context, chunks []*domain.StoredChunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch")
	}
	if err := i.EnsureSchema(ctx, len(vectors[0])); err != nil {
		return err
	}
	for j, chunk := range chunks {
		if err := i.UpsertChunk(ctx, chunk, vectors[j]); err != nil {
			return err
		}
	}
	return nil
}

func (i *Index) SemanticSearch(ctx context.Context, query string, k int) ([]ports.SemanticHit, error) {
	vector, err := i.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := i.db.QueryContext(ctx, `
SELECT chunk_id, embedding <-> $1 AS distance
FROM research_chunks
ORDER BY embedding <-> $1
LIMIT $2
`, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	var hits []ports.SemanticHit
	for rows.Next() {
		var hit ports.SemanticHit
		if err := rows.Scan(&hit.ChunkID, &hit.Distance); err != nil {
			return nil, fmt.Errorf("scan semantic hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semantic rows: %w", err)
	}
	return hits, nil
}

func (i *Index) LexicalSearch(ctx context.Context, query string, k int) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT chunk_id
FROM research_chunks
WHERE tsv @@ plainto_tsquery('english', $1)
ORDER BY ts_rank(tsv, plainto_tsquery('english', $1)) DESC
LIMIT $2
`, query, k)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lexical hit: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lexical rows: %w", err)
	}
	return ids, nil
}

func (i *Index) ChunkLookup(ctx context.Context, chunkID string) (*domain.StoredChunk, error) {
	row := i.db.QueryRowContext(ctx, `
SELECT chunk_id, source_id, section, page_start, page_end, chunk_text
FROM research_chunks
WHERE chunk_id = $1
`, chunkID)

	var chunk domain.StoredChunk
	err := row.Scan(&chunk.ChunkID, &chunk.SourceID, &chunk.Section, &chunk.PageStart, &chunk.PageEnd, &chunk.Text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChunkNotFound, "lookup "+chunkID, err)
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	return &chunk, nil
}

func chunkSeq(chunkID string) int {
	ref, ok := domain.ParseChunkID(chunkID)
	if !ok {
		return 0
	}
	return ref.Sequence
}
