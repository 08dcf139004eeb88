package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments of the assistant. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	TurnsRemembered  prometheus.Counter
	FactsExtracted   *prometheus.CounterVec
	SubWriteFailures *prometheus.CounterVec
	SummariesFolded  prometheus.Counter
	TurnsFolded      prometheus.Counter
	SummaryFallbacks prometheus.Counter
	SearchFallbacks  prometheus.Counter
	CleanupDeleted   *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	TurnLatency      prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers all instruments on reg under namespace.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnsRemembered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_remembered_total",
			Help:      "Conversation turns persisted.",
		}),
		FactsExtracted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_extracted_total",
			Help:      "Facts extracted from conversation turns by kind.",
		}, []string{"kind"}),
		SubWriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_subwrite_failures_total",
			Help:      "Failed fact or embedding writes after a turn was stored.",
		}, []string{"kind"}),
		SummariesFolded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_folded_total",
			Help:      "Summaries written in place of older turns.",
		}),
		TurnsFolded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_folded_total",
			Help:      "Turns removed because they were folded into a summary.",
		}),
		SummaryFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_fallbacks_total",
			Help:      "Summaries that used the fixed fallback sentence.",
		}),
		SearchFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_fallbacks_total",
			Help:      "Similarity searches answered by recency ordering.",
		}),
		CleanupDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deleted_total",
			Help:      "Rows removed by retention cleanup by table.",
		}, []string{"table"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held by the session registry.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Language model provider errors by error type.",
		}, []string{"type"}),
		TurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end latency of one assistant turn in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) IncTurnsRemembered() {
	if m == nil {
		return
	}
	m.TurnsRemembered.Inc()
}

func (m *Metrics) AddFacts(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.FactsExtracted.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncSubWriteFailure(kind string) {
	if m == nil {
		return
	}
	m.SubWriteFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveFold(turns int, fallback bool) {
	if m == nil {
		return
	}
	m.SummariesFolded.Inc()
	m.TurnsFolded.Add(float64(turns))
	if fallback {
		m.SummaryFallbacks.Inc()
	}
}

func (m *Metrics) IncSearchFallback() {
	if m == nil {
		return
	}
	m.SearchFallbacks.Inc()
}

func (m *Metrics) AddCleanup(table string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.CleanupDeleted.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) IncSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) IncToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) IncProviderError(errType string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(errType).Inc()
}

func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}
