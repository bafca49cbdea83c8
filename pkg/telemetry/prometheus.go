package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder counts registry activity in Prometheus counters. It is
// also a prometheus.Collector; the host decides where to register it.
type PrometheusRecorder struct {
	registrations *prometheus.CounterVec
	lookups       *prometheus.CounterVec
}

// NewPrometheusRecorder creates the counters labelled with the registry id.
func NewPrometheusRecorder(registryID string) *PrometheusRecorder {
	labels := prometheus.Labels{"registry_id": registryID}
	return &PrometheusRecorder{
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "closuretrace_registrations_total",
				Help:        "Total number of closure registrations by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "closuretrace_lookups_total",
				Help:        "Total number of creation site lookups by result",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
	}
}

// RecordRegistration increments the registrations counter.
func (p *PrometheusRecorder) RecordRegistration(outcome Outcome) {
	p.registrations.WithLabelValues(string(outcome)).Inc()
}

// RecordLookup increments the lookups counter.
func (p *PrometheusRecorder) RecordLookup(hit bool) {
	p.lookups.WithLabelValues(lookupResult(hit)).Inc()
}

// Describe implements prometheus.Collector.
func (p *PrometheusRecorder) Describe(ch chan<- *prometheus.Desc) {
	p.registrations.Describe(ch)
	p.lookups.Describe(ch)
}

// Collect implements prometheus.Collector.
func (p *PrometheusRecorder) Collect(ch chan<- prometheus.Metric) {
	p.registrations.Collect(ch)
	p.lookups.Collect(ch)
}
