package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
	"document-intelligence/internal/domain/ports/repository"
	"document-intelligence/internal/infra/providers"
)

const (
	maxVisionItems = 4

	visionPrompt = "Describe only what is visible in this image: text, labels, axes, values, " +
		"and the elements of any diagram with their connections. Do not infer context that is " +
		"not visible. If nothing legible is visible, say so in one sentence."
)

// VisionReport summarizes one follow-up pass.
type VisionReport struct {
	Summarized int
	Warnings   []string
}

// VisionFollowUp summarizes figure blocks left vision_pending by extraction.
type VisionFollowUp struct {
	blocks   repository.BlockRepository
	blob     adapter.BlobStore
	ai       adapter.AIServiceAdapter
	model    string
	maxItems int
	log      *zerolog.Logger
}

func NewVisionFollowUp(blocks repository.BlockRepository, blob adapter.BlobStore, ai adapter.AIServiceAdapter, visionModel string, maxItems int, logger *zerolog.Logger) *VisionFollowUp {
	if maxItems <= 0 || maxItems > maxVisionItems {
		maxItems = maxVisionItems
	}
	l := logger.With().Str("component", "vision").Logger()
	return &VisionFollowUp{blocks: blocks, blob: blob, ai: ai, model: visionModel, maxItems: maxItems, log: &l}
}

// Run processes up to maxItems pending figures of a document. It never
// fails: each figure either gains a summary or is left as it was.
func (v *VisionFollowUp) Run(ctx context.Context, documentID string) VisionReport {
	var rep VisionReport
	pending, err := v.blocks.ListByStatus(ctx, nil, documentID, model.BlockVisionPending, v.maxItems)
	if err != nil {
		rep.Warnings = append(rep.Warnings, degrade(v.log, "vision", err))
		return rep
	}
	if len(pending) > v.maxItems {
		pending = pending[:v.maxItems]
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxVisionItems)
	for i := range pending {
		b := pending[i]
		g.Go(func() error {
			err := v.summarize(gctx, &b)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Warnings = append(rep.Warnings, degrade(v.log, "vision", fmt.Errorf("block %s: %w", b.ID, err)))
				return nil
			}
			rep.Summarized++
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func (v *VisionFollowUp) summarize(ctx context.Context, b *model.PageBlock) error {
	path := b.ImagePath()
	if path == "" {
		return errors.New("figure has no image")
	}
	data, err := v.blob.Download(ctx, path)
	if err != nil {
		return fmt.Errorf("download image: %w", err)
	}
	img := adapter.Image{Data: data, MIMEType: providers.SniffImageType(data)}
	text, _, err := v.ai.Vision(ctx, v.model, visionPrompt, img)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty summary")
	}

	updated := *b
	updated.Data = make(map[string]any, len(b.Data)+1)
	for k, val := range b.Data {
		updated.Data[k] = val
	}
	updated.Data[model.BlockDataFigureSummary] = text
	updated.Status = model.BlockExtracted
	return v.blocks.Update(ctx, nil, &updated)
}
