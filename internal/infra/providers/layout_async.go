package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"document-intelligence/internal/config"
	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
)

var _ adapter.LayoutProvider = (*AsyncLayout)(nil)

// AsyncLayout is the submit-then-poll layout provider ("Provider A").
type AsyncLayout struct {
	http    httpClient
	poll    time.Duration
	maxWait time.Duration
}

func NewAsyncLayout(cfg config.ProviderEndpoint) *AsyncLayout {
	poll := cfg.Poll
	if poll <= 0 {
		poll = 2 * time.Second
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}
	return &AsyncLayout{http: newHTTPClient(cfg.URL, cfg.APIKey, cfg.Timeout), poll: poll, maxWait: maxWait}
}

func (p *AsyncLayout) Name() string { return model.ProviderA }

type operation struct {
	OperationID string          `json:"operationId"`
	Status      string          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

func (p *AsyncLayout) Extract(ctx context.Context, req adapter.ExtractionRequest) (*model.ExtractionResult, error) {
	var op operation
	if _, err := p.http.doJSON(ctx, http.MethodPost, "/v1/extract", newExtractBody(req), &op); err != nil {
		return nil, err
	}
	if op.OperationID == "" {
		return nil, errors.New("provider a: submit returned no operation id")
	}

	ctx, cancel := context.WithTimeout(ctx, p.maxWait)
	defer cancel()
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: provider a operation %s: %v", domain.ErrProviderUnavailable, op.OperationID, ctx.Err())
		case <-ticker.C:
		}

		var cur operation
		if _, err := p.http.doJSON(ctx, http.MethodGet, "/v1/operations/"+url.PathEscape(op.OperationID), nil, &cur); err != nil {
			return nil, err
		}
		switch cur.Status {
		case "succeeded":
			var res layoutResult
			if err := json.Unmarshal(cur.Result, &res); err != nil {
				return nil, fmt.Errorf("provider a: decode result: %w", err)
			}
			return res.toModel(p.Name(), cur.Result), nil
		case "failed":
			return nil, fmt.Errorf("provider a operation failed: %s", cur.Error)
		}
	}
}
