package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"document-intelligence/internal/config"
	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/ports/adapter"
)

// DefaultOCRConfidence is assigned when an OCR provider reports none.
const DefaultOCRConfidence = 0.7

const visionOCRPrompt = "Extract ALL text from this image. Output only the text, nothing else."

var (
	_ adapter.OCRProvider = (*HTTPOCR)(nil)
	_ adapter.OCRProvider = (*VisionOCR)(nil)
	_ adapter.OCRProvider = (*OCRChain)(nil)
)

// HTTPOCR calls the OCR service with a signed page-range reference.
type HTTPOCR struct {
	http httpClient
}

func NewHTTPOCR(cfg config.ProviderEndpoint) *HTTPOCR {
	return &HTTPOCR{http: newHTTPClient(cfg.URL, cfg.APIKey, cfg.Timeout)}
}

func (o *HTTPOCR) OCR(ctx context.Context, req adapter.OCRRequest) (*adapter.OCRResult, error) {
	if req.SignedURL == "" {
		return nil, fmt.Errorf("%w: ocr request has no signed url", domain.ErrInvalidArgument)
	}
	var res adapter.OCRResult
	if _, err := o.http.doJSON(ctx, http.MethodPost, "/ocr", req, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, errors.New("ocr service reported failure")
	}
	return withDefaultConfidence(&res), nil
}

// VisionOCR transcribes raw image bytes with a vision-capable model.
type VisionOCR struct {
	ai    adapter.AIServiceAdapter
	model string
}

func NewVisionOCR(ai adapter.AIServiceAdapter, model string) *VisionOCR {
	return &VisionOCR{ai: ai, model: model}
}

func (v *VisionOCR) OCR(ctx context.Context, req adapter.OCRRequest) (*adapter.OCRResult, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: vision ocr needs image bytes", domain.ErrInvalidArgument)
	}
	mime := req.MimeType
	if !strings.HasPrefix(mime, "image/") {
		mime = SniffImageType(req.Image)
	}
	text, _, err := v.ai.Vision(ctx, v.model, visionOCRPrompt, adapter.Image{Data: req.Image, MIMEType: mime})
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("vision ocr returned no text")
	}
	return withDefaultConfidence(&adapter.OCRResult{Success: true, Text: text}), nil
}

// OCRChain tries providers in order and returns the first non-empty text.
type OCRChain struct {
	providers []adapter.OCRProvider
	logger    *zerolog.Logger
}

func NewOCRChain(logger *zerolog.Logger, providers ...adapter.OCRProvider) *OCRChain {
	var ps []adapter.OCRProvider
	for _, p := range providers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &OCRChain{providers: ps, logger: logger}
}

// Enabled reports whether any OCR provider is configured.
func (c *OCRChain) Enabled() bool { return len(c.providers) > 0 }

func (c *OCRChain) OCR(ctx context.Context, req adapter.OCRRequest) (*adapter.OCRResult, error) {
	var errs []error
	for i, p := range c.providers {
		res, err := p.OCR(ctx, req)
		if err == nil && strings.TrimSpace(res.Text) != "" {
			return res, nil
		}
		if err == nil {
			err = errors.New("empty text")
		}
		c.logger.Debug().Err(err).Int("provider_index", i).Msg("ocr provider skipped")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no ocr provider configured", domain.ErrProviderUnavailable)
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, errors.Join(errs...))
}

func withDefaultConfidence(r *adapter.OCRResult) *adapter.OCRResult {
	if r.Confidence == nil {
		c := DefaultOCRConfidence
		r.Confidence = &c
	}
	return r
}

// SniffImageType identifies an image from its magic bytes.
func SniffImageType(b []byte) string {
	switch {
	case len(b) >= 8 && string(b[:8]) == "\x89PNG\r\n\x1a\n":
		return "image/png"
	case len(b) >= 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return "image/jpeg"
	case len(b) >= 6 && (string(b[:6]) == "GIF87a" || string(b[:6]) == "GIF89a"):
		return "image/gif"
	case len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return "image/webp"
	case len(b) >= 2 && b[0] == 'B' && b[1] == 'M':
		return "image/bmp"
	}
	return "application/octet-stream"
}
