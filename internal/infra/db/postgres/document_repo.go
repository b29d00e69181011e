package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/repository"
)

var _ repository.DocumentRepository = (*documentRepo)(nil)

type documentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *documentRepo {
	return &documentRepo{pool: pool}
}

func (r *documentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Document, error) {
	const q = `
SELECT id, owner_id, title, file_name, mime_type, storage_path, file_size, page_count, status,
       extracted_text, extraction_provider, coverage_ratio, missing_pages, last_error, created_at, updated_at
  FROM documents
 WHERE id=$1;`
	row, err := queryRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var (
		d         model.Document
		pageCount *int32
		status    string
		missing   []int32
	)
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Title, &d.FileName, &d.MimeType, &d.StoragePath, &d.FileSize,
		&pageCount, &status, &d.ExtractedText, &d.ExtractionProvider, &d.CoverageRatio, &missing,
		&d.LastError, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	if pageCount != nil {
		n := int(*pageCount)
		d.PageCount = &n
	}
	d.Status = model.DocumentStatus(status)
	for _, p := range missing {
		d.MissingPages = append(d.MissingPages, int(p))
	}
	return &d, nil
}

func (r *documentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.DocumentStatus, lastError string) error {
	const q = `UPDATE documents SET status=$2, last_error=$3 WHERE id=$1;`
	return r.exec(ctx, tx, q, id, string(status), lastError)
}

func (r *documentRepo) SetPageCount(ctx context.Context, tx repository.Tx, id string, pages int) error {
	const q = `UPDATE documents SET page_count=$2 WHERE id=$1;`
	return r.exec(ctx, tx, q, id, pages)
}

// AppendText bumps updated_at: the content version changes with the content.
func (r *documentRepo) AppendText(ctx context.Context, tx repository.Tx, id, text string) error {
	const q = `
UPDATE documents
   SET extracted_text = CASE WHEN extracted_text = '' THEN $2 ELSE extracted_text || E'\n\n' || $2 END,
       updated_at = clock_timestamp()
 WHERE id=$1;`
	return r.exec(ctx, tx, q, id, text)
}

func (r *documentRepo) ReplaceText(ctx context.Context, tx repository.Tx, id, text, provider string) error {
	const q = `UPDATE documents SET extracted_text=$2, extraction_provider=$3, updated_at=clock_timestamp() WHERE id=$1;`
	return r.exec(ctx, tx, q, id, text, provider)
}

func (r *documentRepo) SetCoverage(ctx context.Context, tx repository.Tx, id string, cov model.Coverage) error {
	missing := make([]int32, 0, len(cov.MissingPages))
	for _, p := range cov.MissingPages {
		missing = append(missing, int32(p))
	}
	const q = `UPDATE documents SET coverage_ratio=$2, missing_pages=$3 WHERE id=$1;`
	return r.exec(ctx, tx, q, id, cov.Ratio, missing)
}

func (r *documentRepo) exec(ctx context.Context, tx repository.Tx, q string, args ...interface{}) error {
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
