package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome describes what a registration did.
type Outcome string

// Registration outcomes.
const (
	OutcomeIncluded Outcome = "included"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeNoFrame  Outcome = "no_frame"
	OutcomeNoKey    Outcome = "no_key"
)

// Recorder receives registry activity.
type Recorder interface {
	RecordRegistration(outcome Outcome)
	RecordLookup(hit bool)
}

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	registrationsCounter metric.Int64Counter
	lookupsCounter       metric.Int64Counter
)

// OTelRecorder emits counters through the global MeterProvider.
type OTelRecorder struct {
	RegistryID string
}

// RecordRegistration counts one registration partitioned by outcome.
func (r OTelRecorder) RecordRegistration(outcome Outcome) {
	if err := ensureMetrics(); err != nil {
		return
	}
	registrationsCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("registry.id", r.RegistryID),
		attribute.String("registration.outcome", string(outcome)),
	))
}

// RecordLookup counts one lookup partitioned by result.
func (r OTelRecorder) RecordLookup(hit bool) {
	if err := ensureMetrics(); err != nil {
		return
	}
	lookupsCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("registry.id", r.RegistryID),
		attribute.String("lookup.result", lookupResult(hit)),
	))
}

func lookupResult(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("closuretrace.registry")

		registrationsCounter, metricsInitErr = meter.Int64Counter(
			"closuretrace.registrations_total",
			metric.WithDescription("Closure registrations partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		lookupsCounter, metricsInitErr = meter.Int64Counter(
			"closuretrace.lookups_total",
			metric.WithDescription("Creation site lookups partitioned by result"),
			metric.WithUnit("{count}"),
		)
	})

	return metricsInitErr
}

// Recorders fans activity out to several recorders.
type Recorders []Recorder

// RecordRegistration forwards to every recorder.
func (rs Recorders) RecordRegistration(outcome Outcome) {
	for _, r := range rs {
		r.RecordRegistration(outcome)
	}
}

// RecordLookup forwards to every recorder.
func (rs Recorders) RecordLookup(hit bool) {
	for _, r := range rs {
		r.RecordLookup(hit)
	}
}
