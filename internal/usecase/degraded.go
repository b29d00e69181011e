package usecase

import (
	"github.com/rs/zerolog"

	"document-intelligence/internal/infra/metrics"
)

// Degraded is the outcome of a best-effort step that failed without
// failing the job: embeddings, section cache writes, vision, previews.
type Degraded struct {
	Step string
	Err  error
}

func (d Degraded) Warning() string {
	if d.Err == nil {
		return d.Step + " skipped"
	}
	return d.Step + " skipped: " + d.Err.Error()
}

// degrade logs and counts a degraded step and returns its warning text.
func degrade(log *zerolog.Logger, step string, err error) string {
	metrics.IncDegraded(step)
	log.Warn().Err(err).Str("step", step).Msg("best-effort step degraded")
	return Degraded{Step: step, Err: err}.Warning()
}
