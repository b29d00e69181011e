package model

import "time"

type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusExtracted  DocumentStatus = "extracted"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is the uploaded source file plus its accumulated extraction state.
// UpdatedAt doubles as the content version used to key cached sections.
type Document struct {
	ID                 string
	OwnerID            string
	Title              string
	FileName           string
	MimeType           string
	StoragePath        string
	FileSize           int64
	PageCount          *int
	Status             DocumentStatus
	ExtractedText      string
	ExtractionProvider string
	CoverageRatio      *float64
	MissingPages       []int
	LastError          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SizeMB returns the file size in megabytes, rounded up.
func (d *Document) SizeMB() int {
	const mb = 1 << 20
	if d.FileSize <= 0 {
		return 0
	}
	return int((d.FileSize + mb - 1) / mb)
}
