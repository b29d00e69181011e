package adapter

import (
	"context"

	"document-intelligence/internal/domain/model"
)

// ExtractionRequest addresses a document (or a page range of it) for a
// layout provider. PageStart/PageEnd are 1-based and inclusive; zero means
// the whole document.
type ExtractionRequest struct {
	DocumentID string
	FileName   string
	MimeType   string
	SignedURL  string
	FileSize   int64
	Data       []byte
	PageStart  int
	PageEnd    int
}

type LayoutProvider interface {
	Name() string
	Extract(ctx context.Context, req ExtractionRequest) (*model.ExtractionResult, error)
}

type OCRRequest struct {
	SignedURL  string `json:"signedUrl"`
	FileSize   int64  `json:"fileSize"`
	MimeType   string `json:"mimeType"`
	DocumentID string `json:"documentId"`
	PageStart  int    `json:"pageStart"`
	PageEnd    int    `json:"pageEnd"`
	// Image carries raw bytes when the caller has them; used by model OCR.
	Image []byte `json:"-"`
}

type OCRResult struct {
	Success    bool     `json:"success"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type OCRProvider interface {
	OCR(ctx context.Context, req OCRRequest) (*OCRResult, error)
}

// PDFToolkit opens paginated documents for page-level inspection.
type PDFToolkit interface {
	Open(ctx context.Context, data []byte) (PDFDocument, error)
}

type PDFDocument interface {
	PageCount(ctx context.Context) (int, error)
	// Text returns native text for each page in [start, end], index 0 = start.
	Text(ctx context.Context, start, end int) ([]string, error)
	// ImagePages reports which pages in [start, end] draw raster images.
	ImagePages(ctx context.Context, start, end int) (map[int]bool, error)
	// Render returns a JPEG preview per page in [start, end].
	Render(ctx context.Context, start, end int) (map[int][]byte, error)
	Close() error
}

// OfficeConverter renders office documents through an external converter.
type OfficeConverter interface {
	ToPDF(ctx context.Context, data []byte, fileName string) ([]byte, error)
	// SlideImages renders one PNG per slide when the converter manages to.
	SlideImages(ctx context.Context, data []byte, fileName string) ([][]byte, error)
}
