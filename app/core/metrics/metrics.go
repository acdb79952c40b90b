package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts turns, tool executions and oracle calls. A nil *Metrics is
// valid and counts nothing, so wiring stays optional in tests.
type Metrics struct {
	registry *prometheus.Registry

	turns       *prometheus.CounterVec
	toolCalls   *prometheus.CounterVec
	oracleCalls *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "todoai",
			Name:      "turns_total",
			Help:      "Chat turns processed, by terminal status.",
		}, []string{"status"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "todoai",
			Name:      "tool_executions_total",
			Help:      "Tool calls executed, by tool and outcome status.",
		}, []string{"tool", "status"}),
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "todoai",
			Name:      "oracle_requests_total",
			Help:      "Reasoning oracle round-trips, by stage and result.",
		}, []string{"stage", "result"}),
	}

	registry.MustRegister(m.turns, m.toolCalls, m.oracleCalls)
	return m
}

func (m *Metrics) TurnCompleted(status string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(status).Inc()
}

func (m *Metrics) ToolExecuted(tool, status string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) OracleRequest(stage, result string) {
	if m == nil {
		return
	}
	m.oracleCalls.WithLabelValues(stage, result).Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
