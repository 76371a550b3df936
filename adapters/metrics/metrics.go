// Package metrics provides Prometheus metrics collection for paycore.
package metrics

import (
	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for paycore.
type Collector struct {
	// Processor metrics
	ProcessorCalls    *prometheus.CounterVec
	ProcessorDuration *prometheus.HistogramVec
	ProcessorErrors   *prometheus.CounterVec

	// HTTP API metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		ProcessorCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paycore",
				Name:      "processor_calls_total",
				Help:      "Total number of payment processor calls",
			},
			[]string{"op", "outcome"},
		),
		ProcessorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "paycore",
				Name:      "processor_call_duration_seconds",
				Help:      "Payment processor call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		ProcessorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paycore",
				Name:      "processor_errors_total",
				Help:      "Total number of failed processor calls by error kind",
			},
			[]string{"op", "kind"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paycore",
				Name:      "http_requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "paycore",
				Name:      "http_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveCall implements ports.CallObserver.
func (c *Collector) ObserveCall(op string, kind billing.ErrorKind, seconds float64) {
	outcome := "ok"
	if kind != "" {
		outcome = "error"
		c.ProcessorErrors.WithLabelValues(op, string(kind)).Inc()
	}
	c.ProcessorCalls.WithLabelValues(op, outcome).Inc()
	c.ProcessorDuration.WithLabelValues(op).Observe(seconds)
}

var _ ports.CallObserver = (*Collector)(nil)
