package providers

import (
	"context"
	"net/http"

	"document-intelligence/internal/config"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
)

var _ adapter.LayoutProvider = (*SyncLayout)(nil)

// SyncLayout is the synchronous layout/OCR provider ("Provider B").
type SyncLayout struct {
	http httpClient
}

func NewSyncLayout(cfg config.ProviderEndpoint) *SyncLayout {
	return &SyncLayout{http: newHTTPClient(cfg.URL, cfg.APIKey, cfg.Timeout)}
}

func (p *SyncLayout) Name() string { return model.ProviderB }

func (p *SyncLayout) Extract(ctx context.Context, req adapter.ExtractionRequest) (*model.ExtractionResult, error) {
	var res layoutResult
	raw, err := p.http.doJSON(ctx, http.MethodPost, "/v1/process", newExtractBody(req), &res)
	if err != nil {
		return nil, err
	}
	return res.toModel(p.Name(), raw), nil
}
