package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4/pgxpool"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/repository"
)

var (
	_ repository.PageRepository  = (*pageRepo)(nil)
	_ repository.BlockRepository = (*blockRepo)(nil)
)

type pageRepo struct {
	pool *pgxpool.Pool
}

func NewPageRepo(pool *pgxpool.Pool) *pageRepo {
	return &pageRepo{pool: pool}
}

func (r *pageRepo) Preflight(ctx context.Context, tx repository.Tx, documentID string, total int) error {
	if total <= 0 {
		return nil
	}
	const q = `
INSERT INTO document_pages (document_id, page_index, status, kind)
SELECT $1, g, 'pending', 'unknown' FROM generate_series(1, $2) AS g
ON CONFLICT (document_id, page_index) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, documentID, total)
	return mapErr(err)
}

func (r *pageRepo) MarkRange(ctx context.Context, tx repository.Tx, documentID string, start, end int, status model.PageStatus) error {
	const q = `
UPDATE document_pages SET status=$4, updated_at=now()
 WHERE document_id=$1 AND page_index BETWEEN $2 AND $3;`
	_, err := execSQL(ctx, r.pool, tx, q, documentID, start, end, string(status))
	return mapErr(err)
}

func (r *pageRepo) Save(ctx context.Context, tx repository.Tx, p *model.DocumentPage) error {
	const q = `
INSERT INTO document_pages (document_id, page_index, status, kind, method, confidence, text_length, error, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
ON CONFLICT (document_id, page_index) DO UPDATE SET
  status=$3, kind=$4, method=$5, confidence=$6, text_length=$7, error=$8, updated_at=now();`
	_, err := execSQL(ctx, r.pool, tx, q, p.DocumentID, p.PageIndex, string(p.Status), string(p.Kind),
		string(p.Method), p.Confidence, p.TextLength, p.Error)
	return mapErr(err)
}

func (r *pageRepo) ListByDocument(ctx context.Context, tx repository.Tx, documentID string) ([]model.DocumentPage, error) {
	const q = `
SELECT document_id, page_index, status, kind, method, confidence, text_length, error, updated_at
  FROM document_pages
 WHERE document_id=$1
 ORDER BY page_index ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, documentID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []model.DocumentPage
	for rows.Next() {
		var (
			p                    model.DocumentPage
			status, kind, method string
		)
		if err := rows.Scan(&p.DocumentID, &p.PageIndex, &status, &kind, &method, &p.Confidence,
			&p.TextLength, &p.Error, &p.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		p.Status, p.Kind, p.Method = model.PageStatus(status), model.PageKind(kind), model.ExtractionMethod(method)
		out = append(out, p)
	}
	return out, rows.Err()
}

type blockRepo struct {
	pool *pgxpool.Pool
}

func NewBlockRepo(pool *pgxpool.Pool) *blockRepo {
	return &blockRepo{pool: pool}
}

// ReplaceRange must run inside tx to stay atomic; with a nil tx it opens one.
func (r *blockRepo) ReplaceRange(ctx context.Context, tx repository.Tx, documentID string, start, end int, blocks []model.PageBlock) error {
	if tx == nil {
		return NewTxManager(r.pool).WithTx(ctx, txOptions, func(ctx context.Context, tx repository.Tx) error {
			return r.ReplaceRange(ctx, tx, documentID, start, end, blocks)
		})
	}
	const del = `DELETE FROM page_blocks WHERE document_id=$1 AND page_index BETWEEN $2 AND $3;`
	if _, err := execSQL(ctx, r.pool, tx, del, documentID, start, end); err != nil {
		return mapErr(err)
	}
	const ins = `
INSERT INTO page_blocks (id, document_id, page_index, ordinal, block_type, text, data, confidence, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	for _, b := range blocks {
		data, err := json.Marshal(nonNilData(b.Data))
		if err != nil {
			return err
		}
		if _, err := execSQL(ctx, r.pool, tx, ins, b.ID, documentID, b.PageIndex, b.Ordinal, string(b.Type),
			b.Text, data, b.Confidence, string(b.Status)); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (r *blockRepo) ListFigures(ctx context.Context, tx repository.Tx, documentID string) ([]model.PageBlock, error) {
	const q = `
SELECT id, document_id, page_index, ordinal, block_type, text, data, confidence, status, created_at
  FROM page_blocks
 WHERE document_id=$1 AND block_type='figure'
 ORDER BY page_index, ordinal;`
	return r.list(ctx, tx, q, documentID)
}

func (r *blockRepo) ListByStatus(ctx context.Context, tx repository.Tx, documentID string, status model.BlockStatus, limit int) ([]model.PageBlock, error) {
	const q = `
SELECT id, document_id, page_index, ordinal, block_type, text, data, confidence, status, created_at
  FROM page_blocks
 WHERE document_id=$1 AND status=$2
 ORDER BY page_index, ordinal
 LIMIT $3;`
	return r.list(ctx, tx, q, documentID, string(status), limit)
}

func (r *blockRepo) Update(ctx context.Context, tx repository.Tx, b *model.PageBlock) error {
	data, err := json.Marshal(nonNilData(b.Data))
	if err != nil {
		return err
	}
	const q = `UPDATE page_blocks SET text=$2, data=$3, confidence=$4, status=$5 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, b.ID, b.Text, data, b.Confidence, string(b.Status))
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *blockRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]model.PageBlock, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []model.PageBlock
	for rows.Next() {
		var (
			b                 model.PageBlock
			blockType, status string
			data              []byte
		)
		if err := rows.Scan(&b.ID, &b.DocumentID, &b.PageIndex, &b.Ordinal, &blockType, &b.Text, &data,
			&b.Confidence, &status, &b.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		b.Type, b.Status = model.BlockType(blockType), model.BlockStatus(status)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &b.Data)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func nonNilData(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
