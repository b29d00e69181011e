package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4/pgxpool"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/repository"
)

var _ repository.OutputRepository = (*outputRepo)(nil)

type outputRepo struct {
	pool *pgxpool.Pool
}

func NewOutputRepo(pool *pgxpool.Pool) *outputRepo {
	return &outputRepo{pool: pool}
}

func (r *outputRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.DocumentOutput, error) {
	const q = `
SELECT id, document_id, user_id, status, content, COALESCE(input_snapshot->>'request_id',''), updated_at
  FROM document_outputs
 WHERE id=$1;`
	row, err := queryRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var (
		o       model.DocumentOutput
		status  string
		content []byte
	)
	if err := row.Scan(&o.ID, &o.DocumentID, &o.UserID, &status, &content, &o.RequestID, &o.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	o.Status = model.OutputStatus(status)
	if len(content) > 0 {
		var c model.ExplainContent
		if err := json.Unmarshal(content, &c); err == nil && c.Mode != "" {
			o.Content = &c
		}
	}
	return &o, nil
}

func (r *outputRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id, requestID string) error {
	const q = `
UPDATE document_outputs SET status='processing', updated_at=now()
 WHERE id=$1 AND input_snapshot->>'request_id' = $2;`
	return r.guarded(ctx, tx, q, id, requestID)
}

func (r *outputRepo) Finalize(ctx context.Context, tx repository.Tx, id, requestID string, content *model.ExplainContent) error {
	b, err := json.Marshal(content)
	if err != nil {
		return err
	}
	const q = `
UPDATE document_outputs SET status='completed', content=$3, updated_at=now()
 WHERE id=$1 AND input_snapshot->>'request_id' = $2;`
	return r.guarded(ctx, tx, q, id, requestID, b)
}

func (r *outputRepo) MarkFailed(ctx context.Context, tx repository.Tx, id, requestID, reason string) error {
	b, _ := json.Marshal(map[string]string{"error": reason})
	const q = `
UPDATE document_outputs SET status='failed', content=$3, updated_at=now()
 WHERE id=$1 AND input_snapshot->>'request_id' = $2;`
	return r.guarded(ctx, tx, q, id, requestID, b)
}

// guarded runs a request-conditioned update. Zero affected rows means either
// the output is gone or a newer request replaced the snapshot.
func (r *outputRepo) guarded(ctx context.Context, tx repository.Tx, q string, args ...interface{}) error {
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, tx, args[0].(string)); errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotFound
	}
	return domain.ErrStaleRequest
}
