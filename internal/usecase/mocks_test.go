package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v4"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
	"document-intelligence/internal/domain/ports/repository"
)

// memDocRepo is a small in-memory document store.
type memDocRepo struct {
	mu    sync.Mutex
	store map[string]*model.Document
	clock time.Time
}

func newMemDocRepo(docs ...*model.Document) *memDocRepo {
	r := &memDocRepo{store: make(map[string]*model.Document), clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	for _, d := range docs {
		cp := *d
		r.store[d.ID] = &cp
	}
	return r
}

func (r *memDocRepo) get(id string) *model.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.store[id]
	return &cp
}

func (r *memDocRepo) bump(d *model.Document) {
	r.clock = r.clock.Add(time.Second)
	d.UpdatedAt = r.clock
}

func (r *memDocRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDocRepo) UpdateStatus(_ context.Context, _ repository.Tx, id string, status model.DocumentStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status, d.LastError = status, lastError
	return nil
}

func (r *memDocRepo) SetPageCount(_ context.Context, _ repository.Tx, id string, pages int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := pages
	r.store[id].PageCount = &n
	return nil
}

func (r *memDocRepo) AppendText(_ context.Context, _ repository.Tx, id, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.store[id]
	if d.ExtractedText == "" {
		d.ExtractedText = text
	} else {
		d.ExtractedText += "\n\n" + text
	}
	r.bump(d)
	return nil
}

func (r *memDocRepo) ReplaceText(_ context.Context, _ repository.Tx, id, text, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.store[id]
	d.ExtractedText, d.ExtractionProvider = text, provider
	r.bump(d)
	return nil
}

func (r *memDocRepo) SetCoverage(_ context.Context, _ repository.Tx, id string, cov model.Coverage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.store[id]
	d.CoverageRatio = cov.Ratio
	d.MissingPages = append([]int{}, cov.MissingPages...)
	return nil
}

// memPageRepo keeps page rows per document.
type memPageRepo struct {
	mu    sync.Mutex
	pages map[string]map[int]model.DocumentPage
}

func newMemPageRepo() *memPageRepo {
	return &memPageRepo{pages: make(map[string]map[int]model.DocumentPage)}
}

func (r *memPageRepo) doc(id string) map[int]model.DocumentPage {
	m, ok := r.pages[id]
	if !ok {
		m = make(map[int]model.DocumentPage)
		r.pages[id] = m
	}
	return m
}

func (r *memPageRepo) Preflight(_ context.Context, _ repository.Tx, documentID string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.doc(documentID)
	for i := 1; i <= total; i++ {
		if _, ok := m[i]; !ok {
			m[i] = model.DocumentPage{DocumentID: documentID, PageIndex: i, Status: model.PageStatusPending, Kind: model.PageKindUnknown}
		}
	}
	return nil
}

func (r *memPageRepo) MarkRange(_ context.Context, _ repository.Tx, documentID string, start, end int, status model.PageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.doc(documentID)
	for i := start; i <= end; i++ {
		if p, ok := m[i]; ok {
			p.Status = status
			m[i] = p
		}
	}
	return nil
}

func (r *memPageRepo) Save(_ context.Context, _ repository.Tx, p *model.DocumentPage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc(p.DocumentID)[p.PageIndex] = *p
	return nil
}

func (r *memPageRepo) ListByDocument(_ context.Context, _ repository.Tx, documentID string) ([]model.DocumentPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.DocumentPage
	for _, p := range r.pages[documentID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageIndex < out[j].PageIndex })
	return out, nil
}

// memBlockRepo keeps blocks in insertion order.
type memBlockRepo struct {
	mu        sync.Mutex
	blocks    []model.PageBlock
	updateErr error
	listErr   error
}

func (r *memBlockRepo) ReplaceRange(_ context.Context, _ repository.Tx, documentID string, start, end int, blocks []model.PageBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.blocks[:0:0]
	for _, b := range r.blocks {
		if b.DocumentID == documentID && b.PageIndex >= start && b.PageIndex <= end {
			continue
		}
		kept = append(kept, b)
	}
	r.blocks = append(kept, blocks...)
	return nil
}

func (r *memBlockRepo) ListFigures(_ context.Context, _ repository.Tx, documentID string) ([]model.PageBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.PageBlock
	for _, b := range r.blocks {
		if b.DocumentID == documentID && b.Type == model.BlockFigure {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memBlockRepo) ListByStatus(_ context.Context, _ repository.Tx, documentID string, status model.BlockStatus, limit int) ([]model.PageBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.PageBlock
	for _, b := range r.blocks {
		if b.DocumentID == documentID && b.Status == status {
			out = append(out, b)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memBlockRepo) Update(_ context.Context, _ repository.Tx, block *model.PageBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	for i := range r.blocks {
		if r.blocks[i].ID == block.ID {
			r.blocks[i] = *block
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memBlockRepo) byPage(documentID string, page int) []model.PageBlock {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PageBlock
	for _, b := range r.blocks {
		if b.DocumentID == documentID && b.PageIndex == page {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// memChunkRepo upserts on (document, start, end, provider).
type memChunkRepo struct {
	mu     sync.Mutex
	chunks []model.ExtractionChunk
}

func (r *memChunkRepo) Upsert(_ context.Context, _ repository.Tx, c *model.ExtractionChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ex := range r.chunks {
		if ex.DocumentID == c.DocumentID && ex.StartPage == c.StartPage && ex.EndPage == c.EndPage && ex.Provider == c.Provider {
			c.ID = ex.ID
			r.chunks[i] = *c
			return nil
		}
	}
	r.chunks = append(r.chunks, *c)
	return nil
}

func (r *memChunkRepo) ListByDocument(_ context.Context, _ repository.Tx, documentID string) ([]model.ExtractionChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ExtractionChunk
	for _, c := range r.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartPage < out[j].StartPage })
	return out, nil
}

// memEmbeddingRepo returns matches in insertion order.
type memEmbeddingRepo struct {
	mu        sync.Mutex
	rows      []model.ChunkEmbedding
	upsertErr error
	matchErr  error
}

func (r *memEmbeddingRepo) Upsert(_ context.Context, _ repository.Tx, e *model.ChunkEmbedding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.rows = append(r.rows, *e)
	return nil
}

func (r *memEmbeddingRepo) CountByDocument(_ context.Context, documentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.rows {
		if e.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (r *memEmbeddingRepo) Match(_ context.Context, documentID string, _ []float32, count int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.matchErr != nil {
		return nil, r.matchErr
	}
	var ids []string
	for _, e := range r.rows {
		if e.DocumentID == documentID && len(ids) < count {
			ids = append(ids, e.ChunkID)
		}
	}
	return ids, nil
}

// memOutputRepo applies the request-id guard of the real store.
type memOutputRepo struct {
	mu      sync.Mutex
	outputs map[string]*model.DocumentOutput
}

func newMemOutputRepo(outs ...*model.DocumentOutput) *memOutputRepo {
	r := &memOutputRepo{outputs: make(map[string]*model.DocumentOutput)}
	for _, o := range outs {
		cp := *o
		r.outputs[o.ID] = &cp
	}
	return r
}

func (r *memOutputRepo) guarded(id, requestID string) (*model.DocumentOutput, error) {
	o, ok := r.outputs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.RequestID != requestID {
		return nil, domain.ErrStaleRequest
	}
	return o, nil
}

func (r *memOutputRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.DocumentOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outputs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memOutputRepo) MarkProcessing(_ context.Context, _ repository.Tx, id, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, err := r.guarded(id, requestID)
	if err != nil {
		return err
	}
	o.Status = model.OutputStatusProcessing
	return nil
}

func (r *memOutputRepo) Finalize(_ context.Context, _ repository.Tx, id, requestID string, content *model.ExplainContent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, err := r.guarded(id, requestID)
	if err != nil {
		return err
	}
	cp := *content
	o.Status, o.Content = model.OutputStatusCompleted, &cp
	return nil
}

func (r *memOutputRepo) MarkFailed(_ context.Context, _ repository.Tx, id, requestID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, err := r.guarded(id, requestID)
	if err != nil {
		return err
	}
	o.Status = model.OutputStatusFailed
	return nil
}

// memSectionCache counts hits and can be made to fail.
type memSectionCache struct {
	mu     sync.Mutex
	rows   map[string][]byte
	hits   int
	putErr error
	getErr error
}

func newMemSectionCache() *memSectionCache {
	return &memSectionCache{rows: make(map[string][]byte)}
}

func (c *memSectionCache) Get(_ context.Context, key model.SectionCacheKey) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	b, ok := c.rows[key.String()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c.hits++
	return append([]byte(nil), b...), nil
}

func (c *memSectionCache) Put(_ context.Context, key model.SectionCacheKey, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	c.rows[key.String()] = append([]byte(nil), b...)
	return nil
}

// memJobRepo records enqueued jobs.
type memJobRepo struct {
	mu   sync.Mutex
	jobs []*model.ProcessingJob
}

func (r *memJobRepo) Enqueue(_ context.Context, _ repository.Tx, job *model.ProcessingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs = append(r.jobs, &cp)
	return nil
}

func (r *memJobRepo) LeaseNext(context.Context, string, time.Duration) (*model.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.Status == model.JobStatusQueued {
			j.Status = model.JobStatusLeased
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memJobRepo) MarkRunning(context.Context, string, string) error { return nil }
func (r *memJobRepo) Complete(context.Context, string, string) error    { return nil }
func (r *memJobRepo) Fail(context.Context, string, string, model.JobFailure) error {
	return nil
}

func (r *memJobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memJobRepo) Stats(context.Context) (map[model.JobStatus]int, error) {
	return map[model.JobStatus]int{}, nil
}

// MockTxManager runs fn directly; assign WithTxFunc to simulate failures.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// MockAI answers chat calls through ChatJSONFunc.
type MockAI struct {
	mu           sync.Mutex
	ChatJSONFunc func(model string, msgs []adapter.Message) (string, error)
	EmbedFunc    func(model string, inputs []string) ([][]float32, error)
	VisionFunc   func(model, prompt string, img adapter.Image) (string, error)
	chatCalls    int
	visionCalls  int
}

func (m *MockAI) Provider() string { return "mock" }

func (m *MockAI) ChatJSON(_ context.Context, model string, msgs []adapter.Message) (string, adapter.Usage, error) {
	m.mu.Lock()
	m.chatCalls++
	m.mu.Unlock()
	if m.ChatJSONFunc == nil {
		return "", adapter.Usage{}, domain.ErrGenerationUnavailable
	}
	out, err := m.ChatJSONFunc(model, msgs)
	return out, adapter.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, err
}

func (m *MockAI) Embed(_ context.Context, model string, inputs []string) ([][]float32, error) {
	if m.EmbedFunc == nil {
		return nil, domain.ErrGenerationUnavailable
	}
	return m.EmbedFunc(model, inputs)
}

func (m *MockAI) Vision(_ context.Context, model, prompt string, img adapter.Image) (string, adapter.Usage, error) {
	m.mu.Lock()
	m.visionCalls++
	m.mu.Unlock()
	if m.VisionFunc == nil {
		return "", adapter.Usage{}, domain.ErrGenerationUnavailable
	}
	out, err := m.VisionFunc(model, prompt, img)
	return out, adapter.Usage{}, err
}

func (m *MockAI) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatCalls
}

// runeTokens counts one token per rune.
type runeTokens struct{}

func (runeTokens) Count(s string) int { return utf8.RuneCountInString(s) }
func (runeTokens) Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

// fakeBlob is an in-memory object store.
type fakeBlob struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newFakeBlob() *fakeBlob { return &fakeBlob{objects: make(map[string][]byte)} }

func (b *fakeBlob) put(path string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = data
}

func (b *fakeBlob) has(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok
}

func (b *fakeBlob) Download(_ context.Context, path string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (b *fakeBlob) Upload(_ context.Context, path string, data []byte, _ string) error {
	if b.uploadErr != nil {
		return b.uploadErr
	}
	b.put(path, data)
	return nil
}

func (b *fakeBlob) SignedURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return "https://blob.test/" + path + "?token=t", nil
}

func (b *fakeBlob) SignedRangeURL(_ context.Context, path string, start, end int, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://blob.test/%s?pages=%d-%d", path, start, end), nil
}

// fakePDF serves fixed per-page text, image flags and previews.
type fakePDF struct {
	texts     []string
	images    map[int]bool
	imagesErr error
	renderErr error
}

type fakeToolkit struct {
	doc     adapter.PDFDocument
	openErr error
}

func (t *fakeToolkit) Open(context.Context, []byte) (adapter.PDFDocument, error) {
	if t.openErr != nil {
		return nil, t.openErr
	}
	return t.doc, nil
}

func (d *fakePDF) PageCount(context.Context) (int, error) { return len(d.texts), nil }

func (d *fakePDF) Text(_ context.Context, start, end int) ([]string, error) {
	if start < 1 || end > len(d.texts) {
		return nil, errors.New("page range out of bounds")
	}
	return append([]string(nil), d.texts[start-1:end]...), nil
}

func (d *fakePDF) ImagePages(_ context.Context, start, end int) (map[int]bool, error) {
	if d.imagesErr != nil {
		return nil, d.imagesErr
	}
	out := map[int]bool{}
	for p := start; p <= end; p++ {
		out[p] = d.images[p]
	}
	return out, nil
}

func (d *fakePDF) Render(_ context.Context, start, end int) (map[int][]byte, error) {
	if d.renderErr != nil {
		return nil, d.renderErr
	}
	out := map[int][]byte{}
	for p := start; p <= end; p++ {
		out[p] = []byte{0xFF, 0xD8, 0xFF, byte(p)}
	}
	return out, nil
}

func (d *fakePDF) Close() error { return nil }

// fakeOCR returns text for single pages listed in pages.
type fakeOCR struct {
	mu       sync.Mutex
	pages    map[int]string
	requests []adapter.OCRRequest
	err      error
}

func (o *fakeOCR) OCR(_ context.Context, req adapter.OCRRequest) (*adapter.OCRResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, req)
	if o.err != nil {
		return nil, o.err
	}
	var parts []string
	for p := req.PageStart; p <= req.PageEnd; p++ {
		if t, ok := o.pages[p]; ok {
			parts = append(parts, t)
		}
	}
	return &adapter.OCRResult{Success: true, Text: strings.Join(parts, "\n")}, nil
}

// fakeLayout is a scripted layout provider.
type fakeLayout struct {
	name  string
	mu    sync.Mutex
	calls []adapter.ExtractionRequest
	fn    func(req adapter.ExtractionRequest) (*model.ExtractionResult, error)
}

func (f *fakeLayout) Name() string { return f.name }

func (f *fakeLayout) Extract(_ context.Context, req adapter.ExtractionRequest) (*model.ExtractionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakeLayout) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeOffice returns scripted slide images.
type fakeOffice struct {
	slides [][]byte
	pdf    []byte
	pdfErr error
}

func (o *fakeOffice) ToPDF(context.Context, []byte, string) ([]byte, error) {
	return o.pdf, o.pdfErr
}

func (o *fakeOffice) SlideImages(context.Context, []byte, string) ([][]byte, error) {
	return o.slides, nil
}
