package repository

import (
	"context"

	"document-intelligence/internal/domain/model"
)

// OutputRepository conditions every write on the stored request id. A write
// for a superseded request returns domain.ErrStaleRequest and changes nothing.
type OutputRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.DocumentOutput, error)
	MarkProcessing(ctx context.Context, tx Tx, id, requestID string) error
	Finalize(ctx context.Context, tx Tx, id, requestID string, content *model.ExplainContent) error
	MarkFailed(ctx context.Context, tx Tx, id, requestID, reason string) error
}

type SectionCacheRepository interface {
	// Get returns domain.ErrNotFound on a miss.
	Get(ctx context.Context, key model.SectionCacheKey) ([]byte, error)
	Put(ctx context.Context, key model.SectionCacheKey, sectionJSON []byte) error
}
