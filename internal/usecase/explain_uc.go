package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"document-intelligence/internal/config"
	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
	"document-intelligence/internal/domain/ports/repository"
	"document-intelligence/internal/infra/logging"
	"document-intelligence/internal/infra/metrics"
)

// Compile-time check
var _ ExplainUseCase = (*explainUC)(nil)

type ExplainUseCase interface {
	// Explain builds and finalizes the Deep Explain artifact for one request.
	// ErrStaleRequest means a newer request owns the output.
	Explain(ctx context.Context, p model.ExplainPayload) error
}

// ExplainStores groups the repositories the explain pipeline reads and writes.
type ExplainStores struct {
	Docs    repository.DocumentRepository
	Pages   repository.PageRepository
	Blocks  repository.BlockRepository
	Chunks  repository.ChunkRepository
	Outputs repository.OutputRepository
	Cache   repository.SectionCacheRepository
}

const (
	overviewTopic         = "Overview"
	classifyMaxChunks     = 12
	classifyExcerptTokens = 400
)

type explainUC struct {
	st        ExplainStores
	ai        adapter.AIServiceAdapter
	retriever *Retriever
	vision    *VisionFollowUp
	tokens    adapter.TokenCounter
	models    config.ModelsConfig
	rag       config.RAGConfig
	llm       bool
	now       func() time.Time
	log       *zerolog.Logger
}

// NewExplainUseCase wires the pipeline. With llm false every job completes
// with an unavailable artifact; vision may be nil.
func NewExplainUseCase(st ExplainStores, ai adapter.AIServiceAdapter, retriever *Retriever, vision *VisionFollowUp, tokens adapter.TokenCounter, models config.ModelsConfig, rag config.RAGConfig, llm bool, logger *zerolog.Logger) *explainUC {
	l := logger.With().Str("component", "explain").Logger()
	return &explainUC{
		st:        st,
		ai:        ai,
		retriever: retriever,
		vision:    vision,
		tokens:    tokens,
		models:    models,
		rag:       rag,
		llm:       llm,
		now:       time.Now,
		log:       &l,
	}
}

func (uc *explainUC) Explain(ctx context.Context, p model.ExplainPayload) error {
	ctx = logging.WithRequestID(logging.WithDocumentID(ctx, p.DocumentID), p.RequestID)
	log := logging.With(ctx, uc.log)
	defer logging.TraceDuration(log, "explain")()

	if err := uc.st.Outputs.MarkProcessing(ctx, nil, p.OutputID, p.RequestID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	doc, err := uc.st.Docs.FindByID(ctx, nil, p.DocumentID)
	if err != nil {
		return uc.fail(ctx, p, fmt.Errorf("load document: %w", err))
	}
	pages, err := uc.st.Pages.ListByDocument(ctx, nil, doc.ID)
	if err != nil {
		return uc.fail(ctx, p, fmt.Errorf("load pages: %w", err))
	}
	total := 0
	if doc.PageCount != nil {
		total = *doc.PageCount
	}
	cov := ComputeCoverage(total, pages)

	content, err := uc.generate(ctx, doc, cov)
	if err != nil {
		return uc.fail(ctx, p, err)
	}
	ApplyCoverage(content, cov)
	content.GeneratedAt = uc.now().UTC()

	if err := uc.st.Outputs.Finalize(ctx, nil, p.OutputID, p.RequestID, content); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	log.Info().Str("mode", string(content.Mode)).Int("sections", len(content.Sections)).
		Int("warnings", len(content.Warnings)).Msg("explain finalized")
	return nil
}

// fail records the failure on the output unless a newer request owns it.
func (uc *explainUC) fail(ctx context.Context, p model.ExplainPayload, cause error) error {
	if errors.Is(cause, domain.ErrStaleRequest) {
		return cause
	}
	if err := uc.st.Outputs.MarkFailed(ctx, nil, p.OutputID, p.RequestID, cause.Error()); err != nil {
		if errors.Is(err, domain.ErrStaleRequest) {
			return err
		}
		logging.With(ctx, uc.log).Error().Err(err).Msg("failed to record output failure")
	}
	return cause
}

func (uc *explainUC) generate(ctx context.Context, doc *model.Document, cov model.Coverage) (*model.ExplainContent, error) {
	if !uc.llm {
		return &model.ExplainContent{
			Mode:     model.ModeUnavailable,
			Sections: []model.Section{},
			Warnings: []string{GenerationUnavailableWarning},
		}, nil
	}

	all, err := uc.st.Chunks.ListByDocument(ctx, nil, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	chunks := all[:0:0]
	for _, c := range all {
		if strings.TrimSpace(c.Text) != "" {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) > 0 {
		return uc.buildRAG(ctx, doc, chunks, cov)
	}
	if strings.TrimSpace(doc.ExtractedText) == "" {
		return nil, fmt.Errorf("%w: nothing extracted for document %s", domain.ErrEmptyDocument, doc.ID)
	}
	return uc.buildSingleShot(ctx, doc, cov)
}

func (uc *explainUC) buildRAG(ctx context.Context, doc *model.Document, chunks []model.ExtractionChunk, cov model.Coverage) (*model.ExplainContent, error) {
	var warnings []string
	if uc.vision != nil {
		rep := uc.vision.Run(ctx, doc.ID)
		warnings = append(warnings, rep.Warnings...)
	}
	warnings = append(warnings, uc.retriever.EnsureEmbeddings(ctx, doc.ID, chunks)...)

	cls, err := uc.classify(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	figures, err := uc.st.Blocks.ListFigures(ctx, nil, doc.ID)
	if err != nil {
		warnings = append(warnings, degrade(uc.log, "figures", err))
	}

	topics := SelectTopics(cls.Topics, uc.rag.MaxSections)
	sections := make([]model.Section, 0, len(topics))
	for _, topic := range topics {
		sec, w, err := uc.buildSection(ctx, doc, topic, chunks, figures, cov, cls)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", topic, err)
		}
		warnings = append(warnings, w...)
		sections = append(sections, *sec)
	}

	return &model.ExplainContent{
		Mode:           model.ModeRAG,
		DocumentType:   cls.DocumentType,
		Classification: cls,
		Sections:       sections,
		Warnings:       warnings,
	}, nil
}

// SelectTopics dedupes topics case-insensitively and caps them; no topics
// yields a single Overview.
func SelectTopics(topics []string, maxSections int) []string {
	seen := make(map[string]bool, len(topics))
	var out []string
	for _, t := range topics {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if maxSections > 0 && len(out) == maxSections {
			break
		}
	}
	if len(out) == 0 {
		return []string{overviewTopic}
	}
	return out
}

func (uc *explainUC) classify(ctx context.Context, chunks []model.ExtractionChunk) (*model.Classification, error) {
	sample := chunks
	if len(sample) > classifyMaxChunks {
		sample = RankByStrength(chunks)[:classifyMaxChunks]
	}
	var b strings.Builder
	for _, c := range sample {
		fmt.Fprintf(&b, "[pages %d-%d]\n%s\n\n", c.StartPage, c.EndPage, uc.tokens.Truncate(c.Text, classifyExcerptTokens))
	}
	content := b.String()

	msgs := []adapter.Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: content},
	}
	reply, err := uc.chat(ctx, uc.models.Classify, "classify", msgs)
	if err != nil {
		return nil, err
	}
	var cls model.Classification
	if err := decodeModelJSON(reply, classificationSchema, &cls); err != nil {
		return nil, err
	}
	NormalizeClassification(&cls, content, uc.rag.VendorConfidence)
	return &cls, nil
}

// NormalizeClassification keeps only evidence terms that literally occur
// in content and replaces a low-confidence vendor by a candidate list.
func NormalizeClassification(cls *model.Classification, content string, vendorConfidence float64) {
	lower := strings.ToLower(content)
	terms := make([]string, 0, len(cls.EvidenceTerms))
	for _, t := range cls.EvidenceTerms {
		if t = strings.TrimSpace(t); t != "" && strings.Contains(lower, strings.ToLower(t)) {
			terms = append(terms, t)
		}
	}
	cls.EvidenceTerms = terms

	if cls.VendorCandidates == nil {
		cls.VendorCandidates = []string{}
	}
	if cls.Vendor != "" && cls.Confidence < vendorConfidence {
		found := false
		for _, c := range cls.VendorCandidates {
			if strings.EqualFold(c, cls.Vendor) {
				found = true
				break
			}
		}
		if !found {
			cls.VendorCandidates = append([]string{cls.Vendor}, cls.VendorCandidates...)
		}
		cls.Vendor = ""
	}
	if cls.Topics == nil {
		cls.Topics = []string{}
	}
}

// evidencePackage is what one section generation call is grounded on.
type evidencePackage struct {
	chunks  []model.ExtractionChunk
	ids     []string
	pages   []int
	figures []model.FigureRef
	prompt  string
}

func (uc *explainUC) packageEvidence(evidence []model.ExtractionChunk, figures []model.PageBlock) evidencePackage {
	pkg := evidencePackage{chunks: evidence}
	var b strings.Builder
	var pages []int
	for _, c := range evidence {
		pkg.ids = append(pkg.ids, c.ID)
		pages = append(pages, c.Pages()...)
		fmt.Fprintf(&b, "[chunk %s | pages %d-%d]\n%s\n\n", c.ID, c.StartPage, c.EndPage, uc.tokens.Truncate(c.Text, uc.rag.ExcerptTokens))
	}
	pkg.pages = uniqueSorted(pages)

	maxFigures := uc.rag.MaxFigures
	if maxFigures <= 0 {
		maxFigures = 3
	}
	for _, f := range figures {
		if len(pkg.figures) == maxFigures {
			break
		}
		for _, c := range evidence {
			if !c.Covers(f.PageIndex) {
				continue
			}
			ref := model.FigureRef{BlockID: f.ID, Page: f.PageIndex, ImagePath: f.ImagePath()}
			if s, ok := f.Data[model.BlockDataFigureSummary].(string); ok {
				ref.Summary = s
				fmt.Fprintf(&b, "[figure %s | page %d]\n%s\n\n", f.ID, f.PageIndex, s)
			}
			pkg.figures = append(pkg.figures, ref)
			break
		}
	}
	pkg.prompt = b.String()
	return pkg
}

func (uc *explainUC) buildSection(ctx context.Context, doc *model.Document, topic string, chunks []model.ExtractionChunk, figures []model.PageBlock, cov model.Coverage, cls *model.Classification) (*model.Section, []string, error) {
	evidence, strategy, warnings := uc.retriever.Evidence(ctx, doc.ID, topic, chunks)
	pkg := uc.packageEvidence(evidence, figures)
	key := model.SectionCacheKey{
		DocumentID:        doc.ID,
		DocumentUpdatedAt: doc.UpdatedAt,
		Topic:             topic,
		ChunkIDsHash:      model.HashEvidence(topic, pkg.ids),
	}

	if cached, err := uc.st.Cache.Get(ctx, key); err == nil {
		var sec model.Section
		if err := json.Unmarshal(cached, &sec); err == nil {
			metrics.IncCacheRequest("section", "hit")
			return &sec, warnings, nil
		}
		warnings = append(warnings, degrade(uc.log, "section_cache", fmt.Errorf("corrupt entry for %q", topic)))
	} else if !errors.Is(err, domain.ErrNotFound) {
		warnings = append(warnings, degrade(uc.log, "section_cache", err))
	}
	metrics.IncCacheRequest("section", "miss")

	msgs := []adapter.Message{
		{Role: "system", Content: sectionSystemPrompt},
		{Role: "user", Content: sectionUserPrompt(topic, cls, cov, pkg)},
	}
	reply, err := uc.chat(ctx, uc.models.Section, "section", msgs)
	if err != nil {
		return nil, warnings, err
	}
	var sec model.Section
	if err := decodeModelJSON(reply, sectionSchema, &sec); err != nil {
		return nil, warnings, err
	}
	sec.Topic = topic
	finishSection(&sec)
	EnforceCitations(&sec, evidence)
	sec.Diagrams = FlowchartsOnly(sec.Diagrams)
	sec.Figures = KeepPackagedFigures(sec.Figures, pkg.figures)

	logging.With(ctx, uc.log).Debug().Str("topic", topic).Str("retrieval", strategy).
		Int("evidence", len(evidence)).Msg("section generated")

	if b, err := json.Marshal(sec); err == nil {
		if err := uc.st.Cache.Put(ctx, key, b); err != nil {
			warnings = append(warnings, degrade(uc.log, "section_cache", err))
		}
	}
	return &sec, warnings, nil
}

func finishSection(sec *model.Section) {
	if sec.Bullets == nil {
		sec.Bullets = []string{}
	}
	if sec.Citations.ChunkIDs == nil {
		sec.Citations.ChunkIDs = []string{}
	}
	if sec.Citations.Pages == nil {
		sec.Citations.Pages = []int{}
	}
}

func (uc *explainUC) buildSingleShot(ctx context.Context, doc *model.Document, cov model.Coverage) (*model.ExplainContent, error) {
	text := doc.ExtractedText
	if limit := uc.rag.SingleShotChars; limit > 0 {
		if r := []rune(text); len(r) > limit {
			text = string(r[:limit])
		}
	}
	msgs := []adapter.Message{
		{Role: "system", Content: sectionSystemPrompt},
		{Role: "user", Content: singleShotPrompt(doc, cov, text)},
	}
	reply, err := uc.chat(ctx, uc.models.Section, "single_shot", msgs)
	if err != nil {
		return nil, err
	}
	var sec model.Section
	if err := decodeModelJSON(reply, sectionSchema, &sec); err != nil {
		return nil, err
	}
	sec.Topic = overviewTopic
	finishSection(&sec)
	sec.Diagrams = FlowchartsOnly(sec.Diagrams)
	sec.Figures = nil

	// no chunks exist, so only pages can be cited
	sec.Citations.ChunkIDs = []string{}
	var pages []int
	for _, p := range sec.Citations.Pages {
		if p >= 1 && p <= cov.TotalPages {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		for p := 1; p <= cov.TotalPages; p++ {
			if !containsInt(cov.MissingPages, p) {
				pages = append(pages, p)
			}
		}
	}
	sec.Citations.Pages = uniqueSorted(pages)

	return &model.ExplainContent{
		Mode:     model.ModeSingleShot,
		Sections: []model.Section{sec},
	}, nil
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// chat calls the language model and records call metrics.
func (uc *explainUC) chat(ctx context.Context, modelName, op string, msgs []adapter.Message) (string, error) {
	start := time.Now()
	reply, usage, err := uc.ai.ChatJSON(ctx, modelName, msgs)
	metrics.ObserveAICall(uc.ai.Provider(), modelName, op, usage.PromptTokens, usage.CompletionTokens, time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return reply, nil
}
