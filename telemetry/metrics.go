package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors recorded by instrumented models and tools.
type Metrics struct {
	// ModelRequests counts model calls.
	// Labels: model, status (success|error)
	ModelRequests *prometheus.CounterVec

	// ModelDuration measures model call latency in seconds.
	// Labels: model
	ModelDuration *prometheus.HistogramVec

	// Tokens counts tokens reported by models.
	// Labels: model, type (prompt|completion)
	Tokens *prometheus.CounterVec

	// ToolExecutions counts tool calls.
	// Labels: tool, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec
}

// MetricsOptions configures NewMetrics.
type MetricsOptions struct {
	Namespace string
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// NewMetrics creates and registers the collectors. Registering twice
// against the same registerer panics, so call it once per registerer.
func NewMetrics(optFns ...func(o *MetricsOptions)) *Metrics {
	opts := MetricsOptions{
		Namespace:  "flowmesh",
		Registerer: prometheus.DefaultRegisterer,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	factory := promauto.With(opts.Registerer)

	return &Metrics{
		ModelRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "model_requests_total",
				Help:      "Total number of model calls by model and status",
			},
			[]string{"model", "status"},
		),
		ModelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: opts.Namespace,
				Name:      "model_request_duration_seconds",
				Help:      "Duration of model calls in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
		Tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "model_tokens_total",
				Help:      "Total number of tokens by model and type",
			},
			[]string{"model", "type"},
		),
		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "tool_executions_total",
				Help:      "Total number of tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: opts.Namespace,
				Name:      "tool_execution_duration_seconds",
				Help:      "Duration of tool executions in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
