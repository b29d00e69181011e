package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

type OutputStatus string

const (
	OutputStatusProcessing OutputStatus = "processing"
	OutputStatusCompleted  OutputStatus = "completed"
	OutputStatusFailed     OutputStatus = "failed"
)

type GenerationMode string

const (
	ModeRAG         GenerationMode = "rag"
	ModeSingleShot  GenerationMode = "single_shot"
	ModeUnavailable GenerationMode = "unavailable"
)

// DocumentOutput is the Deep Explain artifact of a document. Every write is
// conditioned on RequestID still matching the stored input snapshot.
type DocumentOutput struct {
	ID         string
	DocumentID string
	UserID     string
	Status     OutputStatus
	Content    *ExplainContent
	RequestID  string
	UpdatedAt  time.Time
}

type ExplainContent struct {
	Mode           GenerationMode  `json:"mode"`
	DocumentType   string          `json:"document_type,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	Sections       []Section       `json:"sections"`
	Coverage       Coverage        `json:"coverage"`
	Warnings       []string        `json:"warnings,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

type Classification struct {
	DocumentType     string   `json:"document_type"`
	Topics           []string `json:"topics"`
	Vendor           string   `json:"vendor,omitempty"`
	VendorCandidates []string `json:"vendor_candidates"`
	Confidence       float64  `json:"confidence"`
	EvidenceTerms    []string `json:"evidence_terms"`
}

type Section struct {
	Topic       string         `json:"topic"`
	Title       string         `json:"title"`
	Explanation string         `json:"explanation"`
	Bullets     []string       `json:"bullets"`
	Diagrams    []Diagram      `json:"diagrams,omitempty"`
	Equations   []string       `json:"equations,omitempty"`
	Tables      []SectionTable `json:"tables,omitempty"`
	Figures     []FigureRef    `json:"figures,omitempty"`
	Citations   Citations      `json:"citations"`
}

type Diagram struct {
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

type SectionTable struct {
	Caption string     `json:"caption,omitempty"`
	Header  []string   `json:"header"`
	Rows    [][]string `json:"rows"`
}

type FigureRef struct {
	BlockID   string `json:"block_id"`
	Page      int    `json:"page"`
	ImagePath string `json:"image_path,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

type Citations struct {
	ChunkIDs []string `json:"chunkIds"`
	Pages    []int    `json:"pages"`
}

// Coverage is always produced by the coverage gate; Ratio is nil when the
// page count is unknown or zero.
type Coverage struct {
	Ratio        *float64 `json:"coverage_ratio"`
	TotalPages   int      `json:"total_pages"`
	DonePages    int      `json:"done_pages"`
	MissingPages []int    `json:"missing_pages"`
	Warning      string   `json:"warning,omitempty"`
}

// SectionCacheKey addresses one cached section for a document content version.
type SectionCacheKey struct {
	DocumentID        string
	DocumentUpdatedAt time.Time
	Topic             string
	ChunkIDsHash      string
}

// HashEvidence returns hex(sha256(topic || sorted chunk ids)).
func HashEvidence(topic string, chunkIDs []string) string {
	ids := append([]string(nil), chunkIDs...)
	sort.Strings(ids)
	h := sha256.New()
	h.Write([]byte(topic))
	h.Write([]byte("||"))
	h.Write([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// String renders the key in a form usable as a cache key.
func (k SectionCacheKey) String() string {
	return "section:" + k.DocumentID + ":" + k.DocumentUpdatedAt.UTC().Format(time.RFC3339Nano) + ":" + k.ChunkIDsHash
}
