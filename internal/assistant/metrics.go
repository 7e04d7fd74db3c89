package assistant

import "github.com/prometheus/client_golang/prometheus"

var messagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "evolvian",
		Subsystem: "assistant",
		Name:      "messages_total",
		Help:      "Messages processed, by channel and detected intent",
	},
	[]string{"channel", "intent"},
)

var llmFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "evolvian",
		Subsystem: "assistant",
		Name:      "llm_failures_total",
		Help:      "Completions that failed after the fallback provider",
	},
)

var answerLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "evolvian",
		Subsystem: "assistant",
		Name:      "answer_latency_seconds",
		Help:      "End-to-end latency of composing one answer",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21},
	},
)

func init() {
	prometheus.MustRegister(messagesTotal, llmFailuresTotal, answerLatency)
}

// RegisterMetrics registers assistant metrics with a custom registry.
// Use this when exposing a non-default registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(messagesTotal, llmFailuresTotal, answerLatency)
}
