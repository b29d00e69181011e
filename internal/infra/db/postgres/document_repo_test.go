//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
)

func TestDocumentPageChunkRepos_Integration(t *testing.T) {
	ctx := context.Background()
	docs := NewDocumentRepo(testPool)
	pages := NewPageRepo(testPool)
	blocks := NewBlockRepo(testPool)
	chunks := NewChunkRepo(testPool)
	embeddings := NewEmbeddingRepo(testPool)

	t.Run("AppendText accumulates and bumps the content version", func(t *testing.T) {
		cleanup(t)
		seedDocument(t, "doc-1")
		before, err := docs.FindByID(ctx, nil, "doc-1")
		require.NoError(t, err)

		require.NoError(t, docs.AppendText(ctx, nil, "doc-1", "=== Pages 1-500 ===\nfirst"))
		require.NoError(t, docs.AppendText(ctx, nil, "doc-1", "=== Pages 501-1000 ===\nsecond"))

		after, err := docs.FindByID(ctx, nil, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "=== Pages 1-500 ===\nfirst\n\n=== Pages 501-1000 ===\nsecond", after.ExtractedText)
		assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
		assert.ErrorIs(t, docs.SetPageCount(ctx, nil, "missing", 3), domain.ErrNotFound)
	})

	t.Run("Preflight is idempotent and SetCoverage persists missing pages", func(t *testing.T) {
		cleanup(t)
		seedDocument(t, "doc-1")
		require.NoError(t, pages.Preflight(ctx, nil, "doc-1", 3))
		require.NoError(t, pages.Save(ctx, nil, &model.DocumentPage{DocumentID: "doc-1", PageIndex: 1, Status: model.PageStatusDone, Kind: model.PageKindText, Method: model.MethodNativeText, Confidence: 0.95, TextLength: 120}))
		require.NoError(t, pages.Preflight(ctx, nil, "doc-1", 3))

		got, err := pages.ListByDocument(ctx, nil, "doc-1")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, model.PageStatusDone, got[0].Status)
		assert.Equal(t, model.PageStatusPending, got[2].Status)

		ratio := 1.0 / 3.0
		require.NoError(t, docs.SetCoverage(ctx, nil, "doc-1", model.Coverage{Ratio: &ratio, TotalPages: 3, DonePages: 1, MissingPages: []int{2, 3}}))
		d, err := docs.FindByID(ctx, nil, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, d.MissingPages)
		require.NotNil(t, d.CoverageRatio)
		assert.InDelta(t, ratio, *d.CoverageRatio, 1e-9)
	})

	t.Run("ReplaceRange drops old blocks of the range only", func(t *testing.T) {
		cleanup(t)
		seedDocument(t, "doc-1")
		text := "hello"
		require.NoError(t, blocks.ReplaceRange(ctx, nil, "doc-1", 1, 2, []model.PageBlock{
			{ID: "b1", PageIndex: 1, Type: model.BlockParagraph, Text: &text, Status: model.BlockExtracted},
			{ID: "b2", PageIndex: 2, Type: model.BlockFigure, Status: model.BlockVisionPending, Data: map[string]any{"image_path": "documents/doc-1/pages/2.jpg"}},
			{ID: "b3", PageIndex: 3, Type: model.BlockParagraph, Text: &text, Status: model.BlockExtracted},
		}))
		require.NoError(t, blocks.ReplaceRange(ctx, nil, "doc-1", 1, 2, []model.PageBlock{
			{ID: "b4", PageIndex: 2, Type: model.BlockFigure, Status: model.BlockDetected},
		}))

		figs, err := blocks.ListFigures(ctx, nil, "doc-1")
		require.NoError(t, err)
		require.Len(t, figs, 1)
		assert.Equal(t, "b4", figs[0].ID)

		pending, err := blocks.ListByStatus(ctx, nil, "doc-1", model.BlockExtracted, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "b3", pending[0].ID)
	})

	t.Run("chunk upsert keeps one row per range and provider", func(t *testing.T) {
		cleanup(t)
		seedDocument(t, "doc-1")
		c1 := &model.ExtractionChunk{ID: "c1", DocumentID: "doc-1", StartPage: 1, EndPage: 10, Provider: model.ProviderNative, Text: "v1", Confidence: 0.9}
		require.NoError(t, chunks.Upsert(ctx, nil, c1))
		c2 := &model.ExtractionChunk{ID: "c2", DocumentID: "doc-1", StartPage: 1, EndPage: 10, Provider: model.ProviderNative, Text: "v2", Confidence: 0.9}
		require.NoError(t, chunks.Upsert(ctx, nil, c2))
		assert.Equal(t, "c1", c2.ID)

		got, err := chunks.ListByDocument(ctx, nil, "doc-1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "v2", got[0].Text)

		require.NoError(t, embeddings.Upsert(ctx, nil, &model.ChunkEmbedding{ChunkID: "c1", DocumentID: "doc-1", Vector: []float32{1, 0, 0}, Model: "test"}))
		n, err := embeddings.CountByDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		ids, err := embeddings.Match(ctx, "doc-1", []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, ids)
	})
}
