package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"document-intelligence/internal/config"
	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
	"document-intelligence/internal/infra/metrics"
)

// ProviderChain delegates extraction to provider A, then B, then the local
// parser. The local parser always yields a result.
type ProviderChain struct {
	primary   adapter.LayoutProvider
	secondary adapter.LayoutProvider
	fallback  adapter.LayoutProvider
	limits    config.ProviderEndpoint
	log       *zerolog.Logger
}

// NewProviderChain wires the chain. primary and secondary may be nil when
// not configured; limits carries provider A's page and size guards.
func NewProviderChain(primary, secondary, fallback adapter.LayoutProvider, limits config.ProviderEndpoint, logger *zerolog.Logger) *ProviderChain {
	l := logger.With().Str("component", "provider_chain").Logger()
	return &ProviderChain{primary: primary, secondary: secondary, fallback: fallback, limits: limits, log: &l}
}

// Extract runs the chain for req. pageEstimate is the cheap page-marker
// count (0 when not applicable). Provider failures come back as warnings.
func (c *ProviderChain) Extract(ctx context.Context, req adapter.ExtractionRequest, pageEstimate int) (*model.ExtractionResult, []string) {
	var warnings []string
	for _, p := range c.candidates(req, pageEstimate) {
		res, err := c.attempt(ctx, p, req)
		if err == nil {
			return res, warnings
		}
		c.log.Warn().Err(err).Str("provider", p.Name()).Str("document_id", req.DocumentID).Msg("provider failed, falling through")
		warnings = append(warnings, fmt.Sprintf("%s failed: %v", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}

	// the fallback parser does not depend on ctx
	start := time.Now()
	res, err := c.fallback.Extract(context.WithoutCancel(ctx), req)
	if err != nil || res == nil {
		metrics.ObserveProvider(c.fallback.Name(), "error", time.Since(start))
		res = &model.ExtractionResult{}
	} else {
		metrics.ObserveProvider(c.fallback.Name(), "ok", time.Since(start))
	}
	res.Provider = model.ProviderFallback
	return res, warnings
}

func (c *ProviderChain) candidates(req adapter.ExtractionRequest, pageEstimate int) []adapter.LayoutProvider {
	var out []adapter.LayoutProvider
	if c.primary != nil {
		switch {
		case c.limits.MaxPages > 0 && pageEstimate > c.limits.MaxPages:
			c.log.Info().Int("page_estimate", pageEstimate).Int("max_pages", c.limits.MaxPages).Msg("provider A skipped by page guard")
		case c.limits.MaxBytes > 0 && req.FileSize > c.limits.MaxBytes:
			c.log.Info().Int64("file_size", req.FileSize).Int64("max_bytes", c.limits.MaxBytes).Msg("provider A skipped by size guard")
		default:
			out = append(out, c.primary)
		}
	}
	if c.secondary != nil {
		out = append(out, c.secondary)
	}
	return out
}

func (c *ProviderChain) attempt(ctx context.Context, p adapter.LayoutProvider, req adapter.ExtractionRequest) (*model.ExtractionResult, error) {
	start := time.Now()
	res, err := p.Extract(ctx, req)
	if err == nil && (res == nil || strings.TrimSpace(ResultText(res)) == "") {
		err = fmt.Errorf("%w: empty result", domain.ErrProviderUnavailable)
	}
	if err != nil {
		result := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
		metrics.ObserveProvider(p.Name(), result, time.Since(start))
		return nil, err
	}
	metrics.ObserveProvider(p.Name(), "ok", time.Since(start))
	res.Provider = p.Name()
	return res, nil
}

// ResultText is the page text of a result plus any tables the provider
// reported separately from the page text.
func ResultText(res *model.ExtractionResult) string {
	text := res.Text()
	var extra []string
	for _, t := range res.Tables {
		tt := t.TableText()
		if tt != "" && !strings.Contains(text, tt) {
			extra = append(extra, tt)
		}
	}
	if len(extra) == 0 {
		return text
	}
	if text == "" {
		return strings.Join(extra, "\n\n")
	}
	return text + "\n\n" + strings.Join(extra, "\n\n")
}

// SlidePreviews renders one image per slide. A converter result with fewer
// than two images is not trusted as a per-slide rendering: the deck is
// converted to PDF and every page rendered instead.
func SlidePreviews(ctx context.Context, office adapter.OfficeConverter, toolkit adapter.PDFToolkit, data []byte, fileName string) ([][]byte, error) {
	imgs, err := office.SlideImages(ctx, data, fileName)
	if err == nil && len(imgs) >= 2 {
		return imgs, nil
	}

	pdfData, err := office.ToPDF(ctx, data, fileName)
	if err != nil {
		return nil, fmt.Errorf("convert deck: %w", err)
	}
	doc, err := toolkit.Open(ctx, pdfData)
	if err != nil {
		return nil, fmt.Errorf("open converted deck: %w", err)
	}
	defer doc.Close()

	n, err := doc.PageCount(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	rendered, err := doc.Render(ctx, 1, n)
	if err != nil {
		return nil, fmt.Errorf("render deck pages: %w", err)
	}
	out := make([][]byte, 0, n)
	for i := 1; i <= n; i++ {
		if img, ok := rendered[i]; ok {
			out = append(out, img)
		}
	}
	return out, nil
}
