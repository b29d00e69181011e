package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCallsLatencyMs,
		aiDegraded,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintel_ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintel_ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docintel_ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"provider", "model", "op", "success"},
	)

	aiDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintel_degraded_steps_total",
			Help: "Best-effort steps that failed and were skipped.",
		},
		[]string{"step"}, // embeddings | vision | section_cache
	)
)

// ObserveAICall records one model call; op is chat | embed | vision.
func ObserveAICall(provider, model, op string, tokensIn, tokensOut int, latencyMs int64, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), norm(op), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncDegraded(step string) {
	aiDegraded.WithLabelValues(norm(step)).Inc()
}
