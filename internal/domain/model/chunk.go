package model

import (
	"encoding/json"
	"time"
)

const (
	ProviderNative   = "native"
	ProviderOCR      = "ocr"
	ProviderA        = "provider_a"
	ProviderB        = "provider_b"
	ProviderFallback = "local_fallback"
	ProviderText     = "plain_text"
)

// ExtractionChunk is content aggregated over [StartPage, EndPage] from one
// provider. The tuple (DocumentID, StartPage, EndPage, Provider) is unique.
type ExtractionChunk struct {
	ID         string
	DocumentID string
	StartPage  int
	EndPage    int
	Provider   string
	Text       string
	Confidence float64
	Raw        json.RawMessage
	CreatedAt  time.Time
}

// Covers reports whether page lies inside the chunk's range.
func (c *ExtractionChunk) Covers(page int) bool {
	return page >= c.StartPage && page <= c.EndPage
}

// Pages lists every page index of the chunk.
func (c *ExtractionChunk) Pages() []int {
	if c.EndPage < c.StartPage {
		return nil
	}
	out := make([]int, 0, c.EndPage-c.StartPage+1)
	for p := c.StartPage; p <= c.EndPage; p++ {
		out = append(out, p)
	}
	return out
}

type ChunkEmbedding struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
	Model      string
	CreatedAt  time.Time
}
