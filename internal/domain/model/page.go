package model

import "time"

type PageStatus string

const (
	PageStatusPending    PageStatus = "pending"
	PageStatusProcessing PageStatus = "processing"
	PageStatusDone       PageStatus = "done"
	PageStatusFailed     PageStatus = "failed"
)

type PageKind string

const (
	PageKindText    PageKind = "text"
	PageKindScanned PageKind = "scanned"
	PageKindBlank   PageKind = "blank"
	PageKindUnknown PageKind = "unknown"
)

type ExtractionMethod string

const (
	MethodNativeText ExtractionMethod = "native_text"
	MethodOCR        ExtractionMethod = "ocr"
	MethodFallback   ExtractionMethod = "fallback"
)

// DocumentPage is one row per 1-based page index. Rows are preflighted as
// pending before extraction so coverage is computable at any time.
type DocumentPage struct {
	DocumentID string
	PageIndex  int
	Status     PageStatus
	Kind       PageKind
	Method     ExtractionMethod
	Confidence float64
	TextLength int
	Error      string
	UpdatedAt  time.Time
}

type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockTable     BlockType = "table"
	BlockFigure    BlockType = "figure"
)

type BlockStatus string

const (
	BlockExtracted     BlockStatus = "extracted"
	BlockDetected      BlockStatus = "detected"
	BlockVisionPending BlockStatus = "vision_pending"
	BlockMissing       BlockStatus = "missing"
)

// Keys used inside PageBlock.Data.
const (
	BlockDataImagePath     = "image_path"
	BlockDataSource        = "source"
	BlockDataFigureSummary = "figure_summary"
	BlockDataRows          = "rows"
)

// PageBlock is a typed content unit of a page. Blocks of a page range are
// always replaced wholesale.
type PageBlock struct {
	ID         string
	DocumentID string
	PageIndex  int
	Ordinal    int
	Type       BlockType
	Text       *string
	Data       map[string]any
	Confidence float64
	Status     BlockStatus
	CreatedAt  time.Time
}

// ImagePath returns the blob path referenced by a figure block.
func (b *PageBlock) ImagePath() string {
	if b.Data == nil {
		return ""
	}
	s, _ := b.Data[BlockDataImagePath].(string)
	return s
}
