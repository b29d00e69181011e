package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/infra/logging"
)

// Orchestrator decodes a leased job's payload once and routes it.
type Orchestrator struct {
	ingest  IngestUseCase
	explain ExplainUseCase
	log     *zerolog.Logger
}

func NewOrchestrator(ingest IngestUseCase, explain ExplainUseCase, logger *zerolog.Logger) *Orchestrator {
	l := logger.With().Str("component", "orchestrator").Logger()
	return &Orchestrator{ingest: ingest, explain: explain, log: &l}
}

// Dispatch runs the job. A stale explain request is a successful no-op.
func (o *Orchestrator) Dispatch(ctx context.Context, job *model.ProcessingJob) error {
	p, err := model.DecodePayload(job.Type, job.Payload)
	if err != nil {
		return err
	}
	ctx = logging.WithDocumentID(ctx, p.Document())

	switch v := p.(type) {
	case model.IngestPayload:
		err = o.ingest.Ingest(ctx, v)
	case model.ExplainPayload:
		err = o.explain.Explain(ctx, v)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownJobType, job.Type)
	}

	log := logging.With(ctx, o.log)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrStaleRequest):
		log.Info().Err(err).Msg("stale request, skipping")
		return nil
	case isPermanent(err):
		log.Warn().Err(err).Msg("permanent input error")
	}
	return err
}
