package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
	"document-intelligence/internal/domain/ports/repository"
)

const (
	maxKeywords        = 10
	minKeywordLength   = 3
	embedBatchSize     = 64
	embedInputTokens   = 2000
	RetrievalVector    = "vector"
	RetrievalKeyword   = "keyword"
	RetrievalStrongest = "strongest"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "any": true, "can": true, "her": true, "was": true,
	"one": true, "our": true, "out": true, "has": true, "have": true, "had": true,
	"his": true, "how": true, "its": true, "may": true, "new": true, "now": true,
	"see": true, "two": true, "who": true, "did": true, "get": true, "use": true,
	"with": true, "this": true, "that": true, "from": true, "they": true, "will": true,
	"what": true, "when": true, "where": true, "which": true, "their": true, "there": true,
	"these": true, "those": true, "than": true, "then": true, "them": true, "been": true,
	"into": true, "about": true, "over": true, "under": true, "also": true, "such": true,
	"each": true, "other": true, "some": true, "more": true, "most": true, "only": true,
	"very": true, "your": true, "were": true, "would": true, "should": true, "could": true,
	"does": true, "using": true, "used": true, "overview": true, "introduction": true,
}

// TopicKeywords normalizes a topic into lowercase alphanumeric tokens,
// dropping stop-words and short tokens, capped at 10 keywords.
func TopicKeywords(topic string) []string {
	fields := strings.FieldsFunc(strings.ToLower(topic), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < minKeywordLength || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// strongerChunk orders by stated confidence, then by text length.
func strongerChunk(a, b *model.ExtractionChunk) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return len(a.Text) > len(b.Text)
}

// RankByKeywords returns the chunks with at least one keyword occurrence,
// best first.
func RankByKeywords(chunks []model.ExtractionChunk, keywords []string) []model.ExtractionChunk {
	if len(keywords) == 0 {
		return nil
	}
	type scored struct {
		chunk model.ExtractionChunk
		score int
	}
	var hits []scored
	for _, c := range chunks {
		text := strings.ToLower(c.Text)
		n := 0
		for _, k := range keywords {
			n += strings.Count(text, k)
		}
		if n > 0 {
			hits = append(hits, scored{chunk: c, score: n})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return strongerChunk(&hits[i].chunk, &hits[j].chunk)
	})
	out := make([]model.ExtractionChunk, len(hits))
	for i, h := range hits {
		out[i] = h.chunk
	}
	return out
}

// RankByStrength orders chunks by confidence then length.
func RankByStrength(chunks []model.ExtractionChunk) []model.ExtractionChunk {
	out := append([]model.ExtractionChunk(nil), chunks...)
	sort.SliceStable(out, func(i, j int) bool { return strongerChunk(&out[i], &out[j]) })
	return out
}

func firstN(chunks []model.ExtractionChunk, n int) []model.ExtractionChunk {
	if n > 0 && len(chunks) > n {
		return chunks[:n]
	}
	return chunks
}

// Retriever selects the evidence chunks of one topic.
type Retriever struct {
	ai         adapter.AIServiceAdapter
	embeddings repository.EmbeddingRepository
	tokens     adapter.TokenCounter
	model      string
	enabled    bool
	topN       int
	perTopic   int
	log        *zerolog.Logger
}

// NewRetriever wires retrieval. With enabled false only keyword scoring is
// used.
func NewRetriever(ai adapter.AIServiceAdapter, embeddings repository.EmbeddingRepository, tokens adapter.TokenCounter, embeddingModel string, enabled bool, topN, perTopic int, logger *zerolog.Logger) *Retriever {
	l := logger.With().Str("component", "retriever").Logger()
	return &Retriever{
		ai:         ai,
		embeddings: embeddings,
		tokens:     tokens,
		model:      embeddingModel,
		enabled:    enabled && embeddings != nil,
		topN:       topN,
		perTopic:   perTopic,
		log:        &l,
	}
}

// EnsureEmbeddings lazily embeds the strongest topN chunks of a document
// that has no embeddings yet. Failures only degrade retrieval.
func (r *Retriever) EnsureEmbeddings(ctx context.Context, documentID string, chunks []model.ExtractionChunk) []string {
	if !r.enabled || len(chunks) == 0 {
		return nil
	}
	n, err := r.embeddings.CountByDocument(ctx, documentID)
	if err != nil {
		return []string{degrade(r.log, "embeddings", err)}
	}
	if n > 0 {
		return nil
	}

	top := firstN(RankByStrength(chunks), r.topN)
	for start := 0; start < len(top); start += embedBatchSize {
		batch := top[start:min(start+embedBatchSize, len(top))]
		inputs := make([]string, len(batch))
		for i, c := range batch {
			inputs[i] = r.tokens.Truncate(c.Text, embedInputTokens)
		}
		vecs, err := r.ai.Embed(ctx, r.model, inputs)
		if err == nil && len(vecs) != len(batch) {
			err = fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), len(batch))
		}
		if err != nil {
			return []string{degrade(r.log, "embeddings", err)}
		}
		for i, c := range batch {
			emb := &model.ChunkEmbedding{ChunkID: c.ID, DocumentID: documentID, Vector: vecs[i], Model: r.model}
			if err := r.embeddings.Upsert(ctx, nil, emb); err != nil {
				return []string{degrade(r.log, "embeddings", err)}
			}
		}
	}
	return nil
}

// Evidence returns the chunks for a topic and the strategy that found
// them: vector search, keyword scoring, or the strongest chunks as a last
// resort. The result is empty only when chunks is.
func (r *Retriever) Evidence(ctx context.Context, documentID, topic string, chunks []model.ExtractionChunk) ([]model.ExtractionChunk, string, []string) {
	var warnings []string
	if r.enabled {
		got, err := r.vectorSearch(ctx, documentID, topic, chunks)
		switch {
		case err != nil:
			warnings = append(warnings, degrade(r.log, "vector_retrieval", err))
		case len(got) > 0:
			return got, RetrievalVector, warnings
		}
	}
	if hits := RankByKeywords(chunks, TopicKeywords(topic)); len(hits) > 0 {
		return firstN(hits, r.perTopic), RetrievalKeyword, warnings
	}
	return firstN(RankByStrength(chunks), r.perTopic), RetrievalStrongest, warnings
}

func (r *Retriever) vectorSearch(ctx context.Context, documentID, topic string, chunks []model.ExtractionChunk) ([]model.ExtractionChunk, error) {
	vecs, err := r.ai.Embed(ctx, r.model, []string{topic})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("empty topic embedding")
	}
	ids, err := r.embeddings.Match(ctx, documentID, vecs[0], r.perTopic)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.ExtractionChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	var out []model.ExtractionChunk
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return firstN(out, r.perTopic), nil
}
