package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/repository"
)

var _ repository.SectionCacheRepository = (*sectionCacheRepo)(nil)

type sectionCacheRepo struct {
	pool *pgxpool.Pool
}

func NewSectionCacheRepo(pool *pgxpool.Pool) *sectionCacheRepo {
	return &sectionCacheRepo{pool: pool}
}

func (r *sectionCacheRepo) Get(ctx context.Context, key model.SectionCacheKey) ([]byte, error) {
	const q = `
SELECT section_json FROM section_cache
 WHERE document_id=$1 AND document_updated_at=$2 AND chunk_ids_hash=$3;`
	row, err := queryRow(ctx, r.pool, nil, q, key.DocumentID, key.DocumentUpdatedAt, key.ChunkIDsHash)
	if err != nil {
		return nil, err
	}
	var b []byte
	if err := row.Scan(&b); err != nil {
		return nil, mapErr(err)
	}
	return b, nil
}

func (r *sectionCacheRepo) Put(ctx context.Context, key model.SectionCacheKey, sectionJSON []byte) error {
	const q = `
INSERT INTO section_cache (document_id, document_updated_at, topic, chunk_ids_hash, section_json)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (document_id, document_updated_at, chunk_ids_hash) DO UPDATE SET section_json=EXCLUDED.section_json;`
	_, err := execSQL(ctx, r.pool, nil, q, key.DocumentID, key.DocumentUpdatedAt, key.Topic, key.ChunkIDsHash, sectionJSON)
	return mapErr(err)
}
