// Package providers holds the external layout/OCR extraction clients and the
// local heuristic parser used when every external provider fails.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
)

type httpClient struct {
	base   string
	apiKey string
	client *http.Client
}

func newHTTPClient(base, apiKey string, timeout time.Duration) httpClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return httpClient{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// doJSON sends in as JSON and decodes the response into out. Transport
// errors and 5xx map to ErrProviderUnavailable.
func (c httpClient) doJSON(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrProviderUnavailable, err)
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: http %d", domain.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("provider http %d: %s", resp.StatusCode, snippet(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode provider response: %w", err)
		}
	}
	return raw, nil
}

func snippet(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// extractBody is the request both layout providers accept.
type extractBody struct {
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	SignedURL  string `json:"signedUrl"`
	FileSize   int64  `json:"fileSize"`
	PageStart  int    `json:"pageStart,omitempty"`
	PageEnd    int    `json:"pageEnd,omitempty"`
}

func newExtractBody(req adapter.ExtractionRequest) extractBody {
	return extractBody{
		DocumentID: req.DocumentID,
		FileName:   req.FileName,
		MimeType:   req.MimeType,
		SignedURL:  req.SignedURL,
		FileSize:   req.FileSize,
		PageStart:  req.PageStart,
		PageEnd:    req.PageEnd,
	}
}

// layoutResult is the common result shape of both layout providers.
type layoutResult struct {
	Pages      []model.ExtractedPage  `json:"pages"`
	Tables     []model.ExtractedTable `json:"tables"`
	Confidence float64                `json:"confidence"`
}

func (r layoutResult) toModel(provider string, raw []byte) *model.ExtractionResult {
	return &model.ExtractionResult{
		Provider:   provider,
		Pages:      r.Pages,
		Tables:     r.Tables,
		Confidence: r.Confidence,
		Raw:        raw,
	}
}
