//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"document-intelligence/internal/domain"
)

func TestBackoff(t *testing.T) {
	cases := map[int]time.Duration{
		0:  5 * time.Second,
		1:  5 * time.Second,
		2:  10 * time.Second,
		3:  20 * time.Second,
		6:  160 * time.Second,
		7:  300 * time.Second,
		30: 300 * time.Second,
	}
	for attempts, want := range cases {
		if got := Backoff(attempts); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", attempts, got, want)
		}
	}
}

func TestNextFailure(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("requeues with backoff while attempts remain", func(t *testing.T) {
		j := &ProcessingJob{Attempts: 1, MaxAttempts: 3}
		f := j.NextFailure(now, errors.New("timeout"))
		if f.Dead {
			t.Fatal("expected job to be retried")
		}
		if f.Attempts != 2 {
			t.Errorf("attempts = %d, want 2", f.Attempts)
		}
		if !f.NextRunAt.Equal(now.Add(10 * time.Second)) {
			t.Errorf("next run = %v", f.NextRunAt)
		}
		if f.Error != "timeout" {
			t.Errorf("error = %q", f.Error)
		}
	})

	t.Run("dead once attempts reach max", func(t *testing.T) {
		j := &ProcessingJob{Attempts: 2, MaxAttempts: 3}
		f := j.NextFailure(now, errors.New("boom"))
		if !f.Dead || f.Attempts != 3 {
			t.Fatalf("got %+v, want dead at 3 attempts", f)
		}
	})
}

func TestDecodePayload(t *testing.T) {
	t.Run("explain variant", func(t *testing.T) {
		p, err := DecodePayload(JobTypeExplain, []byte(`{"document_id":"d1","output_id":"o1","request_id":"r1","user_id":"u1"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ep, ok := p.(ExplainPayload)
		if !ok {
			t.Fatalf("got %T, want ExplainPayload", p)
		}
		if ep.RequestID != "r1" || ep.Document() != "d1" {
			t.Errorf("unexpected payload %+v", ep)
		}
	})

	t.Run("ingest variant with cursor", func(t *testing.T) {
		p, err := DecodePayload(JobTypeIngest, []byte(`{"document_id":"d1","chunk":{"index":1,"start_page":501,"chunk_size":500,"total_pages":2000}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ip := p.(IngestPayload)
		if ip.Chunk == nil || ip.Chunk.EndPage() != 1000 {
			t.Errorf("unexpected cursor %+v", ip.Chunk)
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		_, err := DecodePayload(JobTypeExplain, []byte(`{"document_id":"d1"}`))
		if !errors.Is(err, domain.ErrInvalidPayload) {
			t.Fatalf("expected ErrInvalidPayload, got %v", err)
		}
	})

	t.Run("unknown job type", func(t *testing.T) {
		_, err := DecodePayload("summarize", []byte(`{}`))
		if !errors.Is(err, domain.ErrUnknownJobType) {
			t.Fatalf("expected ErrUnknownJobType, got %v", err)
		}
	})
}

func TestChunkCursor(t *testing.T) {
	c := ChunkCursor{Index: 0, StartPage: 1, ChunkSize: 500, TotalPages: 2000}
	var ranges [][2]int
	for {
		ranges = append(ranges, [2]int{c.StartPage, c.EndPage()})
		next, ok := c.Next()
		if !ok {
			break
		}
		c = next
	}
	want := [][2]int{{1, 500}, {501, 1000}, {1001, 1500}, {1501, 2000}}
	if len(ranges) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(ranges), len(want))
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Errorf("chunk %d = %v, want %v", i, ranges[i], want[i])
		}
	}
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name, mime string
		want       FileType
	}{
		{"report.PDF", "", FileTypePDF},
		{"deck.pptx", "", FileTypePPTX},
		{"notes.docx", "", FileTypeDOCX},
		{"sheet.xlsx", "", FileTypeXLSX},
		{"readme.txt", "", FileTypeTXT},
		{"scan.jpeg", "", FileTypeImage},
		{"upload", "application/pdf", FileTypePDF},
		{"upload", "application/vnd.openxmlformats-officedocument.presentationml.presentation", FileTypePPTX},
		{"upload", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", FileTypeDOCX},
		{"blob.bin", "application/octet-stream", FileTypeUnknown},
	}
	for _, tt := range tests {
		if got := DetectFileType(tt.name, tt.mime); got != tt.want {
			t.Errorf("DetectFileType(%q, %q) = %s, want %s", tt.name, tt.mime, got, tt.want)
		}
	}
}

func TestHashEvidenceIgnoresOrder(t *testing.T) {
	a := HashEvidence("Routing", []string{"c2", "c1", "c3"})
	b := HashEvidence("Routing", []string{"c3", "c2", "c1"})
	if a != b {
		t.Fatal("hash should not depend on chunk id order")
	}
	if a == HashEvidence("Switching", []string{"c1", "c2", "c3"}) {
		t.Fatal("hash should depend on topic")
	}
}
