package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "promptforge",
		Subsystem: "gateway",
		Name:      "completion_duration_seconds",
		Help:      "Duration of model completion requests",
	}, []string{"provider", "model"})

	completionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promptforge",
		Subsystem: "gateway",
		Name:      "completion_failures_total",
		Help:      "Number of failed model completion requests",
	}, []string{"provider", "model"})

	completionTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promptforge",
		Subsystem: "gateway",
		Name:      "completion_tokens_total",
		Help:      "Tokens consumed by model completion requests",
	}, []string{"provider", "model", "direction"})
)

func observeCompletion(provider, model string, seconds float64, tokensIn, tokensOut int) {
	completionDuration.WithLabelValues(provider, model).Observe(seconds)
	completionTokens.WithLabelValues(provider, model, "input").Add(float64(tokensIn))
	completionTokens.WithLabelValues(provider, model, "output").Add(float64(tokensOut))
}
