package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exposes runtime counters in Prometheus format on its own registry.
type Exporter struct {
	registry *prometheus.Registry

	// ToolCalls labels: tool, status (success|error)
	ToolCalls *prometheus.CounterVec
	// ToolDuration labels: tool
	ToolDuration *prometheus.HistogramVec
	// ModelTurns labels: provider, status (success|error)
	ModelTurns *prometheus.CounterVec
	// ModelDuration labels: provider
	ModelDuration *prometheus.HistogramVec
	// SandboxRuns labels: status (success|error)
	SandboxRuns *prometheus.CounterVec
	// SessionStatus is 1 for the current status of each server.
	// Labels: server, status
	SessionStatus *prometheus.GaugeVec
}

// NewExporter creates and registers all collectors.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Exporter{
		registry: reg,
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "mcpilot_tool_calls_total", Help: "Tool calls by tool and status"},
			[]string{"tool", "status"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpilot_tool_call_duration_seconds",
				Help:    "Tool call latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		ModelTurns: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "mcpilot_model_turns_total", Help: "Model turns by provider and status"},
			[]string{"provider", "status"},
		),
		ModelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpilot_model_turn_duration_seconds",
				Help:    "Model turn latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		SandboxRuns: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "mcpilot_sandbox_runs_total", Help: "Script executions by status"},
			[]string{"status"},
		),
		SessionStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{Name: "mcpilot_session_status", Help: "Current status of each capability server"},
			[]string{"server", "status"},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveTool records one tool call. A nil exporter is a no-op.
func (e *Exporter) ObserveTool(tool string, d time.Duration, err error) {
	if e == nil {
		return
	}
	e.ToolCalls.WithLabelValues(tool, status(err)).Inc()
	e.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveModel records one model turn.
func (e *Exporter) ObserveModel(provider string, d time.Duration, err error) {
	if e == nil {
		return
	}
	e.ModelTurns.WithLabelValues(provider, status(err)).Inc()
	e.ModelDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveSandbox records one script execution.
func (e *Exporter) ObserveSandbox(success bool) {
	if e == nil {
		return
	}
	label := "success"
	if !success {
		label = "error"
	}
	e.SandboxRuns.WithLabelValues(label).Inc()
}

// SetSessionStatus marks status as the only active status of server.
func (e *Exporter) SetSessionStatus(server string, current string, all []string) {
	if e == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		e.SessionStatus.WithLabelValues(server, s).Set(v)
	}
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
