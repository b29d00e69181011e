package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pgvector/pgvector-go"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/repository"
)

var (
	_ repository.ChunkRepository     = (*chunkRepo)(nil)
	_ repository.EmbeddingRepository = (*embeddingRepo)(nil)
)

type chunkRepo struct {
	pool *pgxpool.Pool
}

func NewChunkRepo(pool *pgxpool.Pool) *chunkRepo {
	return &chunkRepo{pool: pool}
}

// Upsert writes the chunk and reports the surviving row id back into c.ID.
func (r *chunkRepo) Upsert(ctx context.Context, tx repository.Tx, c *model.ExtractionChunk) error {
	const q = `
INSERT INTO extraction_chunks (id, document_id, start_page, end_page, provider, text, confidence, raw, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (document_id, start_page, end_page, provider) DO UPDATE SET
  text=EXCLUDED.text, confidence=EXCLUDED.confidence, raw=EXCLUDED.raw
RETURNING id;`
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var raw []byte
	if len(c.Raw) > 0 {
		raw = []byte(c.Raw)
	}
	row, err := queryRow(ctx, r.pool, tx, q, c.ID, c.DocumentID, c.StartPage, c.EndPage, c.Provider,
		c.Text, c.Confidence, raw, c.CreatedAt)
	if err != nil {
		return err
	}
	return mapErr(row.Scan(&c.ID))
}

func (r *chunkRepo) ListByDocument(ctx context.Context, tx repository.Tx, documentID string) ([]model.ExtractionChunk, error) {
	const q = `
SELECT id, document_id, start_page, end_page, provider, text, confidence, raw, created_at
  FROM extraction_chunks
 WHERE document_id=$1
 ORDER BY start_page ASC, end_page ASC, provider ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, documentID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []model.ExtractionChunk
	for rows.Next() {
		var (
			c   model.ExtractionChunk
			raw []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.StartPage, &c.EndPage, &c.Provider, &c.Text,
			&c.Confidence, &raw, &c.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		c.Raw = raw
		out = append(out, c)
	}
	return out, rows.Err()
}

type embeddingRepo struct {
	pool *pgxpool.Pool
}

func NewEmbeddingRepo(pool *pgxpool.Pool) *embeddingRepo {
	return &embeddingRepo{pool: pool}
}

func (r *embeddingRepo) Upsert(ctx context.Context, tx repository.Tx, e *model.ChunkEmbedding) error {
	const q = `
INSERT INTO chunk_embeddings (chunk_id, document_id, embedding, model)
VALUES ($1,$2,$3::vector,$4)
ON CONFLICT (chunk_id) DO UPDATE SET embedding=EXCLUDED.embedding, model=EXCLUDED.model;`
	_, err := execSQL(ctx, r.pool, tx, q, e.ChunkID, e.DocumentID, pgvector.NewVector(e.Vector), e.Model)
	return mapErr(err)
}

func (r *embeddingRepo) CountByDocument(ctx context.Context, documentID string) (int, error) {
	row, err := queryRow(ctx, r.pool, nil, `SELECT count(*) FROM chunk_embeddings WHERE document_id=$1;`, documentID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

// Match calls match_document_chunks and returns ids by descending similarity.
func (r *embeddingRepo) Match(ctx context.Context, documentID string, query []float32, count int) ([]string, error) {
	const q = `SELECT chunk_id FROM match_document_chunks($1, $2::vector, $3);`
	rows, err := queryRows(ctx, r.pool, nil, q, documentID, pgvector.NewVector(query), count)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
