package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"document-intelligence/internal/config"
	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
	"document-intelligence/internal/domain/ports/repository"
	"document-intelligence/internal/infra/logging"
	"document-intelligence/internal/infra/providers"
)

// Compile-time check
var _ IngestUseCase = (*ingestUC)(nil)

type IngestUseCase interface {
	// Ingest extracts a document, or one chunk of it when p carries a cursor.
	Ingest(ctx context.Context, p model.IngestPayload) error
}

// ExtractionStores groups the repositories the extraction pipeline writes.
type ExtractionStores struct {
	Docs   repository.DocumentRepository
	Pages  repository.PageRepository
	Blocks repository.BlockRepository
	Chunks repository.ChunkRepository
	Jobs   repository.JobRepository
	Tx     repository.TransactionManager
}

// ExtractionTools groups the external collaborators of the pipeline.
// OCR may be nil.
type ExtractionTools struct {
	Blob    adapter.BlobStore
	Toolkit adapter.PDFToolkit
	Office  adapter.OfficeConverter
	OCR     adapter.OCRProvider
	Chain   *ProviderChain
	Engine  *PageEngine
}

type ingestUC struct {
	st          ExtractionStores
	tools       ExtractionTools
	cfg         config.ExtractionConfig
	maxAttempts int
	signTTL     time.Duration
	log         *zerolog.Logger
}

func NewIngestUseCase(st ExtractionStores, tools ExtractionTools, cfg config.ExtractionConfig, maxAttempts int, signTTL time.Duration, logger *zerolog.Logger) *ingestUC {
	if signTTL <= 0 {
		signTTL = 15 * time.Minute
	}
	l := logger.With().Str("component", "ingest").Logger()
	return &ingestUC{st: st, tools: tools, cfg: cfg, maxAttempts: maxAttempts, signTTL: signTTL, log: &l}
}

// ExtractionTimeout scales the extraction deadline with file size:
// clamp(floor, cap, perMB*sizeMB).
func ExtractionTimeout(cfg config.ExtractionConfig, sizeMB int) time.Duration {
	d := time.Duration(sizeMB) * cfg.TimeoutPerMB
	if d < cfg.TimeoutFloor {
		d = cfg.TimeoutFloor
	}
	if cfg.TimeoutCap > 0 && d > cfg.TimeoutCap {
		d = cfg.TimeoutCap
	}
	return d
}

var writeTx = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

func (uc *ingestUC) Ingest(ctx context.Context, p model.IngestPayload) error {
	doc, err := uc.st.Docs.FindByID(ctx, nil, p.DocumentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", p.DocumentID, err)
	}
	ctx = logging.WithDocumentID(ctx, doc.ID)
	log := logging.With(ctx, uc.log)
	defer logging.TraceDuration(log, "ingest")()

	if t := ExtractionTimeout(uc.cfg, doc.SizeMB()); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	if p.Chunk != nil {
		data, err := uc.tools.Blob.Download(ctx, doc.StoragePath)
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		return uc.runChunk(ctx, doc, data, *p.Chunk)
	}

	if err := uc.st.Docs.UpdateStatus(ctx, nil, doc.ID, model.DocumentStatusProcessing, ""); err != nil {
		return err
	}

	ft := model.DetectFileType(doc.FileName, doc.MimeType)
	if ft == model.FileTypeUnknown {
		return uc.reject(ctx, doc, fmt.Errorf("%w: %s (%s)", domain.ErrUnsupportedFileType, doc.FileName, doc.MimeType))
	}

	data, err := uc.tools.Blob.Download(ctx, doc.StoragePath)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if len(data) == 0 {
		return uc.reject(ctx, doc, fmt.Errorf("%w: empty file", domain.ErrEmptyDocument))
	}
	log.Info().Str("file_type", string(ft)).Int("size_mb", doc.SizeMB()).Msg("ingest started")

	switch ft {
	case model.FileTypePDF:
		return uc.ingestPDF(ctx, doc, data)
	case model.FileTypeTXT:
		return uc.ingestText(ctx, doc, data)
	case model.FileTypeImage:
		return uc.ingestImage(ctx, doc, data)
	default:
		return uc.ingestOffice(ctx, doc, data, ft)
	}
}

// reject records a permanent input error on the document.
func (uc *ingestUC) reject(ctx context.Context, doc *model.Document, cause error) error {
	if err := uc.st.Docs.UpdateStatus(ctx, nil, doc.ID, model.DocumentStatusFailed, cause.Error()); err != nil {
		logging.With(ctx, uc.log).Error().Err(err).Msg("failed to record document failure")
	}
	return cause
}

func (uc *ingestUC) ingestPDF(ctx context.Context, doc *model.Document, data []byte) error {
	log := logging.With(ctx, uc.log)

	total := 0
	pdf, err := uc.tools.Toolkit.Open(ctx, data)
	if err == nil {
		defer pdf.Close()
		total, err = pdf.PageCount(ctx)
	}
	if err != nil || total == 0 {
		log.Warn().Err(err).Msg("pdf toolkit unavailable, estimating page count")
		pdf = nil
		total = providers.EstimatePageCount(data)
	}
	if total == 0 {
		return uc.ingestOffice(ctx, doc, data, model.FileTypePDF)
	}

	if err := uc.preflight(ctx, doc.ID, total); err != nil {
		return err
	}
	if total > uc.cfg.ChunkMinPages || pdf == nil {
		log.Info().Int("pages", total).Int("chunk_size", uc.cfg.ChunkSize).Msg("chunked extraction")
		return uc.runChunk(ctx, doc, data, model.ChunkCursor{
			Index:      0,
			StartPage:  1,
			ChunkSize:  uc.cfg.ChunkSize,
			TotalPages: total,
		})
	}

	var texts []string
	for start := 1; start <= total; start += uc.cfg.BatchPages {
		end := min(start+uc.cfg.BatchPages-1, total)
		if err := uc.st.Pages.MarkRange(ctx, nil, doc.ID, start, end, model.PageStatusProcessing); err != nil {
			return err
		}
		batch, err := uc.tools.Engine.ProcessRange(ctx, doc, pdf, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Warn().Err(err).Int("start", start).Int("end", end).Msg("page batch failed")
			if err := uc.st.Pages.MarkRange(ctx, nil, doc.ID, start, end, model.PageStatusFailed); err != nil {
				return err
			}
			continue
		}
		if err := uc.persistBatch(ctx, doc.ID, start, end, batch.Pages, batch.Blocks, &batch.Chunk); err != nil {
			return err
		}
		if batch.Chunk.Text != "" {
			texts = append(texts, batch.Chunk.Text)
		}
	}

	if err := uc.st.Docs.ReplaceText(ctx, nil, doc.ID, strings.Join(texts, "\n\n"), model.ProviderNative); err != nil {
		return err
	}
	return uc.finish(ctx, doc.ID, total)
}

// runChunk extracts one page-range chunk through the provider chain. The
// chunk, its text and the continuation job commit together, so chunk N+1
// exists only once chunk N is durable.
func (uc *ingestUC) runChunk(ctx context.Context, doc *model.Document, data []byte, cur model.ChunkCursor) error {
	log := logging.With(ctx, uc.log)
	start, end := cur.StartPage, cur.EndPage()
	header := ChunkHeader(start, end)
	next, more := cur.Next()

	persisted, complete, err := uc.chunkState(ctx, doc, start, end, cur.TotalPages)
	if err != nil {
		return err
	}
	if persisted {
		log.Info().Int("chunk", cur.Index).Bool("complete", complete).Msg("chunk already persisted")
		if complete {
			return uc.finish(ctx, doc.ID, cur.TotalPages)
		}
		return nil
	}

	if err := uc.st.Pages.MarkRange(ctx, nil, doc.ID, start, end, model.PageStatusProcessing); err != nil {
		return err
	}

	req := uc.extractionRequest(ctx, doc, data)
	req.PageStart, req.PageEnd = start, end
	res, warnings := uc.tools.Chain.Extract(ctx, req, cur.TotalPages)
	for _, w := range warnings {
		log.Debug().Str("warning", w).Int("chunk", cur.Index).Msg("provider chain")
	}

	text := ResultText(res)
	pages, blocks := pagesFromResult(doc.ID, res, start, end)
	chunk := model.ExtractionChunk{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		StartPage:  start,
		EndPage:    end,
		Provider:   res.Provider,
		Text:       text,
		Confidence: res.Confidence,
		Raw:        res.Raw,
	}

	err = uc.st.Tx.WithTx(ctx, writeTx, func(ctx context.Context, tx repository.Tx) error {
		if cur.Index == 0 {
			if err := uc.st.Docs.ReplaceText(ctx, tx, doc.ID, "", res.Provider); err != nil {
				return err
			}
		}
		if err := uc.st.Docs.AppendText(ctx, tx, doc.ID, header+"\n"+text); err != nil {
			return err
		}
		if err := uc.writeRange(ctx, tx, doc.ID, start, end, pages, blocks, &chunk); err != nil {
			return err
		}
		if !more {
			return nil
		}
		job, err := model.NewJob(uuid.NewString(), model.IngestPayload{DocumentID: doc.ID, Chunk: &next}, uc.maxAttempts)
		if err != nil {
			return err
		}
		return uc.st.Jobs.Enqueue(ctx, tx, job)
	})
	if err != nil {
		return fmt.Errorf("persist chunk %d (pages %d-%d): %w", cur.Index, start, end, err)
	}

	log.Info().Int("chunk", cur.Index).Int("start", start).Int("end", end).
		Str("provider", res.Provider).Bool("continues", more).Msg("chunk persisted")
	if more {
		return nil
	}
	return uc.finish(ctx, doc.ID, cur.TotalPages)
}

// chunkState reports whether pages start-end were already committed by an
// earlier delivery, and whether the final chunk of the document has been
// committed. Chunk 0 resets the document text, so it only runs while no
// delivery has persisted it.
func (uc *ingestUC) chunkState(ctx context.Context, doc *model.Document, start, end, total int) (persisted, complete bool, err error) {
	persisted = strings.Contains(doc.ExtractedText, ChunkHeader(start, end))
	rows, err := uc.st.Chunks.ListByDocument(ctx, nil, doc.ID)
	if err != nil {
		return false, false, fmt.Errorf("list chunks: %w", err)
	}
	for _, c := range rows {
		if c.StartPage == start && c.EndPage == end {
			persisted = true
		}
		if c.EndPage == total {
			complete = true
		}
	}
	return persisted, complete, nil
}

// ChunkHeader is the page-range marker preceding each chunk's text.
func ChunkHeader(start, end int) string {
	return fmt.Sprintf("=== Pages %d-%d ===", start, end)
}

func (uc *ingestUC) ingestOffice(ctx context.Context, doc *model.Document, data []byte, ft model.FileType) error {
	log := logging.With(ctx, uc.log)

	res, warnings := uc.tools.Chain.Extract(ctx, uc.extractionRequest(ctx, doc, data), 0)
	for _, w := range warnings {
		log.Debug().Str("warning", w).Msg("provider chain")
	}
	normalizePages(res)
	total := max(1, len(res.Pages))

	var previews [][]byte
	if ft == model.FileTypePPTX {
		imgs, err := SlidePreviews(ctx, uc.tools.Office, uc.tools.Toolkit, data, doc.FileName)
		if err != nil {
			degrade(log, "slide_preview", err)
		}
		previews = imgs
		total = max(total, len(previews))
	}

	pages, blocks := pagesFromResult(doc.ID, res, 1, total)
	blocks = append(blocks, uc.uploadSlides(ctx, doc.ID, previews, blocks)...)

	if err := uc.preflight(ctx, doc.ID, total); err != nil {
		return err
	}
	text := ResultText(res)
	chunk := model.ExtractionChunk{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		StartPage:  1,
		EndPage:    total,
		Provider:   res.Provider,
		Text:       text,
		Confidence: res.Confidence,
		Raw:        res.Raw,
	}
	err := uc.st.Tx.WithTx(ctx, writeTx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.st.Docs.ReplaceText(ctx, tx, doc.ID, text, res.Provider); err != nil {
			return err
		}
		return uc.writeRange(ctx, tx, doc.ID, 1, total, pages, blocks, &chunk)
	})
	if err != nil {
		return fmt.Errorf("persist extraction: %w", err)
	}
	return uc.finish(ctx, doc.ID, total)
}

// uploadSlides stores slide previews and returns one figure block per slide,
// ordered after the slide's existing blocks.
func (uc *ingestUC) uploadSlides(ctx context.Context, documentID string, previews [][]byte, existing []model.PageBlock) []model.PageBlock {
	log := logging.With(ctx, uc.log)
	next := make(map[int]int)
	for _, b := range existing {
		next[b.PageIndex] = max(next[b.PageIndex], b.Ordinal+1)
	}
	var blocks []model.PageBlock
	for i, img := range previews {
		slide := i + 1
		mime := providers.SniffImageType(img)
		ext := ".png"
		if mime == "image/jpeg" {
			ext = ".jpg"
		}
		path := fmt.Sprintf("documents/%s/slides/%d%s", documentID, slide, ext)
		if err := uc.tools.Blob.Upload(ctx, path, img, mime); err != nil {
			degrade(log, "slide_preview", err)
			continue
		}
		blocks = append(blocks, model.PageBlock{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			PageIndex:  slide,
			Ordinal:    next[slide],
			Type:       model.BlockFigure,
			Data:       map[string]any{model.BlockDataImagePath: path, model.BlockDataSource: "slide_preview"},
			Status:     model.BlockDetected,
		})
	}
	return blocks
}

func (uc *ingestUC) ingestText(ctx context.Context, doc *model.Document, data []byte) error {
	text := strings.TrimSpace(providers.DecodeText(data))
	if text == "" {
		return uc.reject(ctx, doc, fmt.Errorf("%w: no text", domain.ErrEmptyDocument))
	}
	if err := uc.preflight(ctx, doc.ID, 1); err != nil {
		return err
	}
	page := model.DocumentPage{
		DocumentID: doc.ID,
		PageIndex:  1,
		Status:     model.PageStatusDone,
		Kind:       model.PageKindText,
		Method:     model.MethodNativeText,
		Confidence: 1.0,
		TextLength: len(text),
	}
	block := model.PageBlock{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		PageIndex:  1,
		Type:       model.BlockParagraph,
		Text:       &text,
		Data:       map[string]any{model.BlockDataSource: "native"},
		Confidence: 1.0,
		Status:     model.BlockExtracted,
	}
	chunk := model.ExtractionChunk{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		StartPage:  1,
		EndPage:    1,
		Provider:   model.ProviderText,
		Text:       text,
		Confidence: 1.0,
	}
	err := uc.st.Tx.WithTx(ctx, writeTx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.st.Docs.ReplaceText(ctx, tx, doc.ID, text, model.ProviderText); err != nil {
			return err
		}
		return uc.writeRange(ctx, tx, doc.ID, 1, 1, []model.DocumentPage{page}, []model.PageBlock{block}, &chunk)
	})
	if err != nil {
		return fmt.Errorf("persist text: %w", err)
	}
	return uc.finish(ctx, doc.ID, 1)
}

func (uc *ingestUC) ingestImage(ctx context.Context, doc *model.Document, data []byte) error {
	log := logging.With(ctx, uc.log)
	if err := uc.preflight(ctx, doc.ID, 1); err != nil {
		return err
	}

	text, conf := "", 0.0
	if uc.tools.OCR != nil {
		t, c, err := uc.ocrImage(ctx, doc, data)
		if err != nil {
			degrade(log, "ocr", err)
		}
		text, conf = t, c
	}

	page := model.DocumentPage{
		DocumentID: doc.ID,
		PageIndex:  1,
		Status:     model.PageStatusDone,
		Kind:       model.PageKindScanned,
		Method:     model.MethodOCR,
		Confidence: conf,
		TextLength: len(text),
	}
	figStatus := model.BlockDetected
	if text == "" {
		page.Status = model.PageStatusFailed
		page.Error = "no text recognized"
		figStatus = model.BlockVisionPending
	}
	blocks := []model.PageBlock{{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		PageIndex:  1,
		Type:       model.BlockFigure,
		Data:       map[string]any{model.BlockDataImagePath: doc.StoragePath, model.BlockDataSource: "upload"},
		Confidence: conf,
		Status:     figStatus,
	}}
	blocks = append(blocks, textBlock(doc.ID, 1, 1, text, conf, "ocr"))

	chunk := model.ExtractionChunk{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		StartPage:  1,
		EndPage:    1,
		Provider:   model.ProviderOCR,
		Text:       text,
		Confidence: conf,
	}
	err := uc.st.Tx.WithTx(ctx, writeTx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.st.Docs.ReplaceText(ctx, tx, doc.ID, text, model.ProviderOCR); err != nil {
			return err
		}
		return uc.writeRange(ctx, tx, doc.ID, 1, 1, []model.DocumentPage{page}, blocks, &chunk)
	})
	if err != nil {
		return fmt.Errorf("persist image: %w", err)
	}
	return uc.finish(ctx, doc.ID, 1)
}

func (uc *ingestUC) ocrImage(ctx context.Context, doc *model.Document, data []byte) (string, float64, error) {
	if uc.cfg.OCRTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.OCRTimeout)
		defer cancel()
	}
	url, err := uc.tools.Blob.SignedURL(ctx, doc.StoragePath, uc.signTTL)
	if err != nil {
		return "", 0, fmt.Errorf("sign: %w", err)
	}
	res, err := uc.tools.OCR.OCR(ctx, adapter.OCRRequest{
		SignedURL:  url,
		FileSize:   doc.FileSize,
		MimeType:   doc.MimeType,
		DocumentID: doc.ID,
		PageStart:  1,
		PageEnd:    1,
		Image:      data,
	})
	if err != nil {
		return "", 0, err
	}
	text := CleanText(res.Text)
	conf := providers.DefaultOCRConfidence
	if res.Confidence != nil {
		conf = *res.Confidence
	}
	return text, max(conf, ocrMinConfidence), nil
}

func (uc *ingestUC) extractionRequest(ctx context.Context, doc *model.Document, data []byte) adapter.ExtractionRequest {
	url, err := uc.tools.Blob.SignedURL(ctx, doc.StoragePath, uc.signTTL)
	if err != nil {
		degrade(logging.With(ctx, uc.log), "signed_url", err)
	}
	return adapter.ExtractionRequest{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		MimeType:   doc.MimeType,
		SignedURL:  url,
		FileSize:   doc.FileSize,
		Data:       data,
	}
}

func (uc *ingestUC) preflight(ctx context.Context, documentID string, total int) error {
	if err := uc.st.Docs.SetPageCount(ctx, nil, documentID, total); err != nil {
		return err
	}
	return uc.st.Pages.Preflight(ctx, nil, documentID, total)
}

func (uc *ingestUC) persistBatch(ctx context.Context, documentID string, start, end int, pages []model.DocumentPage, blocks []model.PageBlock, chunk *model.ExtractionChunk) error {
	return uc.st.Tx.WithTx(ctx, writeTx, func(ctx context.Context, tx repository.Tx) error {
		return uc.writeRange(ctx, tx, documentID, start, end, pages, blocks, chunk)
	})
}

func (uc *ingestUC) writeRange(ctx context.Context, tx repository.Tx, documentID string, start, end int, pages []model.DocumentPage, blocks []model.PageBlock, chunk *model.ExtractionChunk) error {
	if err := uc.st.Blocks.ReplaceRange(ctx, tx, documentID, start, end, blocks); err != nil {
		return err
	}
	for i := range pages {
		if err := uc.st.Pages.Save(ctx, tx, &pages[i]); err != nil {
			return err
		}
	}
	return uc.st.Chunks.Upsert(ctx, tx, chunk)
}

// finish applies the coverage gate to the document and marks it extracted.
func (uc *ingestUC) finish(ctx context.Context, documentID string, total int) error {
	pages, err := uc.st.Pages.ListByDocument(ctx, nil, documentID)
	if err != nil {
		return err
	}
	cov := ComputeCoverage(total, pages)
	if err := uc.st.Docs.SetCoverage(ctx, nil, documentID, cov); err != nil {
		return err
	}
	if err := uc.st.Docs.UpdateStatus(ctx, nil, documentID, model.DocumentStatusExtracted, ""); err != nil {
		return err
	}
	ev := logging.With(ctx, uc.log).Info().Int("total_pages", cov.TotalPages).Int("done_pages", cov.DonePages)
	if cov.Ratio != nil {
		ev = ev.Float64("coverage_ratio", *cov.Ratio)
	}
	ev.Msg("document extracted")
	return nil
}

// normalizePages renumbers provider pages 1..n when the provider did not
// report usable 1-based indices.
func normalizePages(res *model.ExtractionResult) {
	seen := make(map[int]bool, len(res.Pages))
	ok := true
	for _, p := range res.Pages {
		if p.Index < 1 || seen[p.Index] {
			ok = false
			break
		}
		seen[p.Index] = true
	}
	if ok {
		return
	}
	for i := range res.Pages {
		res.Pages[i].Index = i + 1
	}
}

// pagesFromResult maps a provider result onto page rows and blocks for
// [start, end]. A result with a single page over a longer range is treated
// as covering the whole range.
func pagesFromResult(documentID string, res *model.ExtractionResult, start, end int) ([]model.DocumentPage, []model.PageBlock) {
	method := model.MethodNativeText
	if res.Provider == model.ProviderFallback {
		method = model.MethodFallback
	}
	byIndex := make(map[int]model.ExtractedPage, len(res.Pages))
	for _, p := range res.Pages {
		byIndex[p.Index] = p
	}
	tables := make(map[int][]model.ExtractedTable)
	for _, t := range res.Tables {
		tables[t.Page] = append(tables[t.Page], t)
	}
	aggregate := end > start && len(res.Pages) <= 1

	var (
		pages  []model.DocumentPage
		blocks []model.PageBlock
	)
	aggText := strings.TrimSpace(ResultText(res))
	for n := start; n <= end; n++ {
		page := model.DocumentPage{
			DocumentID: documentID,
			PageIndex:  n,
			Method:     method,
			Confidence: res.Confidence,
		}
		if aggregate {
			if aggText == "" {
				page.Status, page.Kind, page.Error = model.PageStatusFailed, model.PageKindUnknown, "no text extracted"
			} else {
				page.Status, page.Kind = model.PageStatusDone, model.PageKindText
			}
			if n == start {
				page.TextLength = len(aggText)
				blocks = append(blocks, textBlock(documentID, n, 0, aggText, res.Confidence, res.Provider))
			}
			pages = append(pages, page)
			continue
		}

		ep, ok := byIndex[n]
		switch {
		case !ok:
			page.Status, page.Kind, page.Error = model.PageStatusFailed, model.PageKindUnknown, "page missing from provider result"
			blocks = append(blocks, textBlock(documentID, n, 0, "", 0, res.Provider))
		case strings.TrimSpace(ep.Text) == "" && len(ep.Blocks) == 0:
			page.Status, page.Kind = model.PageStatusDone, model.PageKindBlank
			blocks = append(blocks, textBlock(documentID, n, 0, "", 0, res.Provider))
		default:
			page.Status, page.Kind = model.PageStatusDone, model.PageKindText
			page.TextLength = len(ep.Text)
			blocks = append(blocks, providerBlocks(documentID, ep, tables[n], res)...)
		}
		pages = append(pages, page)
	}
	return pages, blocks
}

func providerBlocks(documentID string, ep model.ExtractedPage, tables []model.ExtractedTable, res *model.ExtractionResult) []model.PageBlock {
	var out []model.PageBlock
	if len(ep.Blocks) == 0 {
		out = append(out, textBlock(documentID, ep.Index, 0, ep.Text, res.Confidence, res.Provider))
	}
	for _, b := range ep.Blocks {
		typ := b.Type
		if typ == "" {
			typ = model.BlockParagraph
		}
		conf := b.Confidence
		if conf == 0 {
			conf = res.Confidence
		}
		blk := textBlock(documentID, ep.Index, len(out), b.Text, conf, res.Provider)
		blk.Type = typ
		out = append(out, blk)
	}
	for _, t := range tables {
		tt := t.TableText()
		blk := textBlock(documentID, ep.Index, len(out), tt, res.Confidence, res.Provider)
		blk.Type = model.BlockTable
		blk.Data[model.BlockDataRows] = append(append([][]string(nil), t.Header...), t.Body...)
		out = append(out, blk)
	}
	return out
}

// textBlock builds a paragraph block, or the missing placeholder when text
// is empty.
func textBlock(documentID string, page, ordinal int, text string, conf float64, source string) model.PageBlock {
	b := model.PageBlock{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		PageIndex:  page,
		Ordinal:    ordinal,
		Type:       model.BlockParagraph,
		Data:       map[string]any{model.BlockDataSource: source},
		Confidence: conf,
		Status:     model.BlockExtracted,
	}
	if strings.TrimSpace(text) == "" {
		b.Status = model.BlockMissing
		b.Confidence = 0
		return b
	}
	b.Text = &text
	return b
}

// isPermanent reports input errors that retrying cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrUnsupportedFileType) || errors.Is(err, domain.ErrEmptyDocument)
}
