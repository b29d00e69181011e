package repository

import (
	"context"

	"document-intelligence/internal/domain/model"
)

type DocumentRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Document, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.DocumentStatus, lastError string) error
	SetPageCount(ctx context.Context, tx Tx, id string, pages int) error
	// AppendText appends to the accumulated extracted text; it never truncates.
	AppendText(ctx context.Context, tx Tx, id, text string) error
	ReplaceText(ctx context.Context, tx Tx, id, text, provider string) error
	SetCoverage(ctx context.Context, tx Tx, id string, cov model.Coverage) error
}
