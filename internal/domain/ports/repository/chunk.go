package repository

import (
	"context"

	"document-intelligence/internal/domain/model"
)

type ChunkRepository interface {
	// Upsert keys on (document_id, start_page, end_page, provider).
	Upsert(ctx context.Context, tx Tx, chunk *model.ExtractionChunk) error
	ListByDocument(ctx context.Context, tx Tx, documentID string) ([]model.ExtractionChunk, error)
}

type EmbeddingRepository interface {
	Upsert(ctx context.Context, tx Tx, emb *model.ChunkEmbedding) error
	CountByDocument(ctx context.Context, documentID string) (int, error)
	// Match returns chunk ids ordered by vector similarity.
	Match(ctx context.Context, documentID string, query []float32, count int) ([]string, error)
}
