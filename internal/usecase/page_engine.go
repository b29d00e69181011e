package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"document-intelligence/internal/config"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
	"document-intelligence/internal/infra/metrics"
)

// PageBatch is everything one page range produced, ready to persist.
type PageBatch struct {
	Pages    []model.DocumentPage
	Blocks   []model.PageBlock
	Chunk    model.ExtractionChunk
	Warnings []string
}

// PageEngine turns a range of PDF pages into page rows, blocks, previews
// and one extraction chunk.
type PageEngine struct {
	blob    adapter.BlobStore
	ocr     adapter.OCRProvider
	cfg     config.ExtractionConfig
	signTTL time.Duration
	log     *zerolog.Logger
}

// NewPageEngine wires the engine. A nil ocr disables OCR substitution.
func NewPageEngine(blob adapter.BlobStore, ocr adapter.OCRProvider, cfg config.ExtractionConfig, signTTL time.Duration, logger *zerolog.Logger) *PageEngine {
	if cfg.OCRBatchPages <= 0 {
		cfg.OCRBatchPages = 1
	}
	if signTTL <= 0 {
		signTTL = 15 * time.Minute
	}
	l := logger.With().Str("component", "page_engine").Logger()
	return &PageEngine{blob: blob, ocr: ocr, cfg: cfg, signTTL: signTTL, log: &l}
}

type pageState struct {
	index     int
	quality   PageQuality
	hasImages bool
	imagesOK  bool
	text      string
	ocrUsed   bool
	preview   string
}

// needsOCR skips clean pages and pages known to be blank.
func (st *pageState) needsOCR() bool {
	if !st.quality.Poor {
		return false
	}
	return st.hasImages || st.quality.Text != "" || !st.imagesOK
}

// PreviewPath is the blob path of a page's rendered preview.
func PreviewPath(documentID string, page int) string {
	return fmt.Sprintf("documents/%s/pages/%d.jpg", documentID, page)
}

// ProcessRange extracts pages [start, end] of an open PDF. Native text
// failure fails the whole range; images, previews and OCR only degrade.
func (e *PageEngine) ProcessRange(ctx context.Context, doc *model.Document, pdf adapter.PDFDocument, start, end int) (*PageBatch, error) {
	texts, err := pdf.Text(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("page text %d-%d: %w", start, end, err)
	}

	batch := &PageBatch{}
	images, imgErr := pdf.ImagePages(ctx, start, end)
	if imgErr != nil {
		batch.Warnings = append(batch.Warnings, degrade(e.log, "page_images", imgErr))
	}

	states := make([]*pageState, 0, end-start+1)
	for n := start; n <= end; n++ {
		raw := ""
		if i := n - start; i < len(texts) {
			raw = texts[i]
		}
		q := AssessText(raw)
		states = append(states, &pageState{
			index:     n,
			quality:   q,
			hasImages: images[n],
			imagesOK:  imgErr == nil,
			text:      q.Text,
		})
	}

	batch.Warnings = append(batch.Warnings, e.renderPreviews(ctx, doc, pdf, start, end, states)...)
	extraOCR, ocrWarn := e.runOCR(ctx, doc, states)
	batch.Warnings = append(batch.Warnings, ocrWarn...)

	var (
		parts      []string
		confSum    float64
		provider   = model.ProviderNative
		rawPages   = make([]map[string]any, 0, len(states))
		thumbnails []string
	)
	for _, st := range states {
		page, blocks := e.assemble(doc.ID, st)
		batch.Pages = append(batch.Pages, page)
		batch.Blocks = append(batch.Blocks, blocks...)
		metrics.IncPage(string(page.Kind), string(page.Method))

		confSum += page.Confidence
		if st.ocrUsed {
			provider = model.ProviderOCR
		}
		if st.text != "" {
			parts = append(parts, fmt.Sprintf("[Page %d]\n%s", st.index, st.text))
		}
		if st.preview != "" && len(thumbnails) < e.cfg.MaxThumbnails {
			thumbnails = append(thumbnails, st.preview)
		}
		rawPages = append(rawPages, map[string]any{
			"page":       st.index,
			"kind":       page.Kind,
			"method":     page.Method,
			"confidence": page.Confidence,
			"preview":    st.preview,
		})
	}
	if extraOCR != "" {
		parts = append(parts, extraOCR)
		provider = model.ProviderOCR
	}

	raw, _ := json.Marshal(map[string]any{"pages": rawPages, "thumbnails": thumbnails})
	batch.Chunk = model.ExtractionChunk{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		StartPage:  start,
		EndPage:    end,
		Provider:   provider,
		Text:       strings.Join(parts, "\n\n"),
		Confidence: confSum / float64(len(states)),
		Raw:        raw,
	}
	return batch, nil
}

func (e *PageEngine) renderPreviews(ctx context.Context, doc *model.Document, pdf adapter.PDFDocument, start, end int, states []*pageState) []string {
	var warnings []string
	rendered, err := pdf.Render(ctx, start, end)
	if err != nil {
		return append(warnings, degrade(e.log, "page_preview", err))
	}
	for _, st := range states {
		img, ok := rendered[st.index]
		if !ok {
			continue
		}
		path := PreviewPath(doc.ID, st.index)
		if err := e.blob.Upload(ctx, path, img, "image/jpeg"); err != nil {
			warnings = append(warnings, degrade(e.log, "page_preview", err))
			continue
		}
		st.preview = path
	}
	return warnings
}

// runOCR calls the OCR provider once per run of consecutive poor pages,
// capped at OCRBatchPages. Text lands on a page only for single-page runs;
// longer runs return their text once for the chunk.
func (e *PageEngine) runOCR(ctx context.Context, doc *model.Document, states []*pageState) (string, []string) {
	if e.ocr == nil {
		return "", nil
	}
	var (
		runs     [][]*pageState
		cur      []*pageState
		warnings []string
		extra    []string
	)
	for _, st := range states {
		if !st.needsOCR() {
			if len(cur) > 0 {
				runs, cur = append(runs, cur), nil
			}
			continue
		}
		if len(cur) > 0 && (cur[len(cur)-1].index != st.index-1 || len(cur) >= e.cfg.OCRBatchPages) {
			runs, cur = append(runs, cur), nil
		}
		cur = append(cur, st)
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}

	for _, run := range runs {
		first, last := run[0].index, run[len(run)-1].index
		text, err := e.ocrRange(ctx, doc, first, last)
		if err != nil {
			warnings = append(warnings, degrade(e.log, "ocr", err))
			continue
		}
		if text == "" {
			continue
		}
		if len(run) == 1 {
			run[0].text = text
			run[0].ocrUsed = true
			continue
		}
		extra = append(extra, fmt.Sprintf("[OCR Pages %d-%d]\n%s", first, last, text))
	}
	return strings.Join(extra, "\n\n"), warnings
}

func (e *PageEngine) ocrRange(ctx context.Context, doc *model.Document, first, last int) (string, error) {
	if e.cfg.OCRTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.OCRTimeout)
		defer cancel()
	}
	url, err := e.blob.SignedRangeURL(ctx, doc.StoragePath, first, last, e.signTTL)
	if err != nil {
		return "", fmt.Errorf("sign range: %w", err)
	}
	res, err := e.ocr.OCR(ctx, adapter.OCRRequest{
		SignedURL:  url,
		FileSize:   doc.FileSize,
		MimeType:   doc.MimeType,
		DocumentID: doc.ID,
		PageStart:  first,
		PageEnd:    last,
	})
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", fmt.Errorf("ocr pages %d-%d: unsuccessful", first, last)
	}
	return CleanText(res.Text), nil
}

func (e *PageEngine) assemble(documentID string, st *pageState) (model.DocumentPage, []model.PageBlock) {
	kind := ResolveKind(st.quality.Text, st.hasImages)
	if kind == model.PageKindBlank && !st.imagesOK {
		kind = model.PageKindUnknown
	}

	method := model.MethodNativeText
	conf := PageConfidence(st.quality, false)
	source := "native"
	if st.ocrUsed {
		method = model.MethodOCR
		conf = PageConfidence(AssessText(st.text), true)
		source = "ocr"
	}

	page := model.DocumentPage{
		DocumentID: documentID,
		PageIndex:  st.index,
		Status:     model.PageStatusDone,
		Kind:       kind,
		Method:     method,
		Confidence: conf,
		TextLength: len(st.text),
	}

	figStatus := model.BlockDetected
	if st.quality.Poor && st.hasImages {
		figStatus = model.BlockVisionPending
	}
	figData := map[string]any{model.BlockDataSource: "preview"}
	if st.preview != "" {
		figData[model.BlockDataImagePath] = st.preview
	}
	blocks := []model.PageBlock{{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		PageIndex:  st.index,
		Ordinal:    0,
		Type:       model.BlockFigure,
		Data:       figData,
		Confidence: conf,
		Status:     figStatus,
	}}

	if st.text == "" {
		blocks = append(blocks, model.PageBlock{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			PageIndex:  st.index,
			Ordinal:    1,
			Type:       model.BlockParagraph,
			Data:       map[string]any{model.BlockDataSource: "none"},
			Status:     model.BlockMissing,
		})
		return page, blocks
	}

	typ := model.BlockParagraph
	if LooksLikeTable(st.text, e.cfg.TableMinLength) {
		typ = model.BlockTable
	}
	text := st.text
	blocks = append(blocks, model.PageBlock{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		PageIndex:  st.index,
		Ordinal:    1,
		Type:       typ,
		Text:       &text,
		Data:       map[string]any{model.BlockDataSource: source},
		Confidence: conf,
		Status:     model.BlockExtracted,
	})
	return page, blocks
}
