package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the chat scheduling flow.
type ChatMetrics struct {
	turnsTotal      *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	llmTimeouts     *prometheus.CounterVec
	toolCallsTotal  *prometheus.CounterVec
	bookingsTotal   *prometheus.CounterVec
	guardrailsTotal *prometheus.CounterVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lab",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns handled, by intent and pipeline path",
		}, []string{"intent", "path"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lab",
			Subsystem: "chat",
			Name:      "llm_latency_seconds",
			Help:      "Latency of LLM calls by phase",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		llmTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lab",
			Subsystem: "chat",
			Name:      "llm_timeouts_total",
			Help:      "LLM calls that lost the race against their timeout",
		}, []string{"phase"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lab",
			Subsystem: "chat",
			Name:      "tool_calls_total",
			Help:      "Tool executions requested by the model",
		}, []string{"tool", "outcome"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lab",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Appointment write attempts by outcome code",
		}, []string{"outcome"}),
		guardrailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lab",
			Subsystem: "chat",
			Name:      "guardrail_rewrites_total",
			Help:      "Replies rewritten by an output guardrail rule",
		}, []string{"rule"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.llmLatency, m.llmTimeouts, m.toolCallsTotal, m.bookingsTotal, m.guardrailsTotal)
	return m
}

func (m *ChatMetrics) ObserveTurn(intent, path string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(intent, path).Inc()
}

func (m *ChatMetrics) ObserveLLM(phase string, seconds float64, timedOut bool) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(phase).Observe(seconds)
	if timedOut {
		m.llmTimeouts.WithLabelValues(phase).Inc()
	}
}

func (m *ChatMetrics) ObserveToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

func (m *ChatMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *ChatMetrics) ObserveGuardrail(rule string) {
	if m == nil {
		return
	}
	m.guardrailsTotal.WithLabelValues(rule).Inc()
}
