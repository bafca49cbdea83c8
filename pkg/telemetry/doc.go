// Package telemetry records closure tracer activity.
//
// Registration outcomes and lookups are counted through OpenTelemetry
// instruments obtained from the global MeterProvider, and optionally through
// a Prometheus collector the host registers with its own registry. Span
// helpers attach a closure's creation site to the active span so operators
// can correlate a callback with the code that built it.
package telemetry
