package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/closure-trace/pkg/domain"
)

// RecordCreationSite adds a "closure.created" event describing where a
// closure was built to the provided span.
func RecordCreationSite(span trace.Span, closure string, frame domain.Frame) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("closure.name", closure),
		attribute.String("code.function", frame.Function),
		attribute.String("closure.site", frame.String()),
	}
	if frame.HasFile() {
		attrs = append(attrs, attribute.String("code.filepath", frame.File))
	}
	if frame.HasLine() {
		attrs = append(attrs, attribute.Int("code.lineno", frame.Line))
	}

	span.AddEvent("closure.created", trace.WithAttributes(attrs...))
}
