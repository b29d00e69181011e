package model

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"document-intelligence/internal/domain"
)

var validate = validator.New()

// JobPayload is the sum type of job payloads, one variant per JobType.
type JobPayload interface {
	Type() JobType
	Document() string
	sealed()
}

// ChunkCursor marks where a chunked ingest resumes.
type ChunkCursor struct {
	Index      int `json:"index" validate:"gte=0"`
	StartPage  int `json:"start_page" validate:"gte=1"`
	ChunkSize  int `json:"chunk_size" validate:"gte=1"`
	TotalPages int `json:"total_pages" validate:"gte=1"`
}

// EndPage is the last page covered by this chunk.
func (c ChunkCursor) EndPage() int {
	end := c.StartPage + c.ChunkSize - 1
	if end > c.TotalPages {
		end = c.TotalPages
	}
	return end
}

// Next returns the following cursor, or false when this is the last chunk.
func (c ChunkCursor) Next() (ChunkCursor, bool) {
	if c.EndPage() >= c.TotalPages {
		return ChunkCursor{}, false
	}
	return ChunkCursor{
		Index:      c.Index + 1,
		StartPage:  c.EndPage() + 1,
		ChunkSize:  c.ChunkSize,
		TotalPages: c.TotalPages,
	}, true
}

type IngestPayload struct {
	DocumentID string       `json:"document_id" validate:"required"`
	Chunk      *ChunkCursor `json:"chunk,omitempty"`
}

func (IngestPayload) Type() JobType      { return JobTypeIngest }
func (p IngestPayload) Document() string { return p.DocumentID }
func (IngestPayload) sealed()            {}

type ExplainPayload struct {
	DocumentID string `json:"document_id" validate:"required"`
	OutputID   string `json:"output_id" validate:"required"`
	RequestID  string `json:"request_id" validate:"required"`
	UserID     string `json:"user_id"`
}

func (ExplainPayload) Type() JobType      { return JobTypeExplain }
func (p ExplainPayload) Document() string { return p.DocumentID }
func (ExplainPayload) sealed()            {}

// DecodePayload decodes raw payload JSON into the variant selected by jobType.
func DecodePayload(jobType JobType, raw []byte) (JobPayload, error) {
	var p JobPayload
	switch jobType {
	case JobTypeIngest:
		var v IngestPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		p = v
	case JobTypeExplain:
		var v ExplainPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobType, jobType)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return p, nil
}

func EncodePayload(p JobPayload) ([]byte, error) {
	if p == nil {
		return nil, domain.ErrInvalidPayload
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return json.Marshal(p)
}
