//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
)

func TestOutputRepo_Integration(t *testing.T) {
	ctx := context.Background()
	repo := NewOutputRepo(testPool)

	t.Run("Finalize for the current request completes the output", func(t *testing.T) {
		cleanup(t)
		seedDocument(t, "doc-1")
		seedOutput(t, "out-1", "doc-1", "r1")

		content := &model.ExplainContent{Mode: model.ModeRAG, Sections: []model.Section{{Topic: "Overview", Title: "Overview"}}, GeneratedAt: time.Now().UTC()}
		require.NoError(t, repo.Finalize(ctx, nil, "out-1", "r1", content))

		got, err := repo.FindByID(ctx, nil, "out-1")
		require.NoError(t, err)
		assert.Equal(t, model.OutputStatusCompleted, got.Status)
		require.NotNil(t, got.Content)
		assert.Len(t, got.Content.Sections, 1)
	})

	t.Run("writes for a superseded request are rejected", func(t *testing.T) {
		cleanup(t)
		seedDocument(t, "doc-1")
		seedOutput(t, "out-1", "doc-1", "r2")

		assert.ErrorIs(t, repo.MarkProcessing(ctx, nil, "out-1", "r1"), domain.ErrStaleRequest)
		assert.ErrorIs(t, repo.Finalize(ctx, nil, "out-1", "r1", &model.ExplainContent{Mode: model.ModeRAG}), domain.ErrStaleRequest)
		assert.ErrorIs(t, repo.MarkFailed(ctx, nil, "out-1", "r1", "x"), domain.ErrStaleRequest)

		got, err := repo.FindByID(ctx, nil, "out-1")
		require.NoError(t, err)
		assert.Equal(t, model.OutputStatusProcessing, got.Status)
		assert.Nil(t, got.Content)
	})

	t.Run("missing output is not found", func(t *testing.T) {
		cleanup(t)
		assert.ErrorIs(t, repo.MarkProcessing(ctx, nil, "nope", "r1"), domain.ErrNotFound)
	})
}
