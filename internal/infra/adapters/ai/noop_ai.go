package ai

import (
	"context"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter stands in when no model credentials are configured. Every
// call reports domain.ErrGenerationUnavailable so the explain pipeline can
// complete with an "unavailable" artifact instead of failing.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{}
}

func (a *NoopAIAdapter) Provider() string { return "noop" }

func (a *NoopAIAdapter) ChatJSON(context.Context, string, []adapter.Message) (string, adapter.Usage, error) {
	return "", adapter.Usage{}, domain.ErrGenerationUnavailable
}

func (a *NoopAIAdapter) Embed(context.Context, string, []string) ([][]float32, error) {
	return nil, domain.ErrGenerationUnavailable
}

func (a *NoopAIAdapter) Vision(context.Context, string, string, adapter.Image) (string, adapter.Usage, error) {
	return "", adapter.Usage{}, domain.ErrGenerationUnavailable
}
