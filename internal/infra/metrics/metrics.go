// Package metrics holds the Prometheus collectors shared by the SOAP client
// and the REST layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vmpay"

// Outcome labels for SOAP calls.
const (
	OutcomeSuccess    = "success"
	OutcomeFault      = "fault"
	OutcomeTransport  = "transport_error"
	OutcomeDecode     = "decode_error"
	OutcomeExtraction = "extraction_error"
	OutcomeEnvelope   = "envelope_error"
)

// Registry owns the collectors. Tests build their own to stay isolated.
type Registry struct {
	reg *prometheus.Registry

	soapCalls   *prometheus.CounterVec
	soapLatency *prometheus.HistogramVec
	declines    *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		soapCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vmachine",
			Name:      "calls_total",
			Help:      "SOAP calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		soapLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vmachine",
			Name:      "call_duration_seconds",
			Help:      "SOAP round trip latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		declines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authorizer",
			Name:      "declines_total",
			Help:      "Declined or failed REST operations by flow and error code.",
		}, []string{"flow", "code"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.soapCalls,
		r.soapLatency,
		r.declines,
	)

	return r
}

// ObserveCall records one SOAP round trip.
func (r *Registry) ObserveCall(operation, outcome string, took time.Duration) {
	if r == nil {
		return
	}

	r.soapCalls.With(prometheus.Labels{"operation": operation, "outcome": outcome}).Inc()
	r.soapLatency.With(prometheus.Labels{"operation": operation}).Observe(took.Seconds())
}

// ObserveDecline records an error code handed back to a REST caller.
func (r *Registry) ObserveDecline(flow, code string) {
	if r == nil {
		return
	}

	r.declines.With(prometheus.Labels{"flow": flow, "code": code}).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
