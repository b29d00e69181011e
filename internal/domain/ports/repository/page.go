package repository

import (
	"context"

	"document-intelligence/internal/domain/model"
)

type PageRepository interface {
	// Preflight inserts pending rows for pages 1..total that do not exist yet.
	Preflight(ctx context.Context, tx Tx, documentID string, total int) error
	MarkRange(ctx context.Context, tx Tx, documentID string, start, end int, status model.PageStatus) error
	Save(ctx context.Context, tx Tx, page *model.DocumentPage) error
	ListByDocument(ctx context.Context, tx Tx, documentID string) ([]model.DocumentPage, error)
}

type BlockRepository interface {
	// ReplaceRange deletes every block of pages [start, end] and inserts blocks.
	ReplaceRange(ctx context.Context, tx Tx, documentID string, start, end int, blocks []model.PageBlock) error
	ListFigures(ctx context.Context, tx Tx, documentID string) ([]model.PageBlock, error)
	ListByStatus(ctx context.Context, tx Tx, documentID string, status model.BlockStatus, limit int) ([]model.PageBlock, error)
	Update(ctx context.Context, tx Tx, block *model.PageBlock) error
}
