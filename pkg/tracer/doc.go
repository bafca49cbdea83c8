// Package tracer records where closures were created.
//
// A Registry receives one Register call per closure implementation from the
// hook. It applies the inclusion filter, walks the call stack past the
// tracing machinery, and stores the first application frame under the
// closure's trace key. Lookup later derives the same key from the closure's
// synthetic type alone and returns the stored frame.
//
// Registries are explicitly constructed and owned by the host; there is no
// package-level instance. Lazy offers compute-once construction for hosts
// that want the registry created on first use.
package tracer
