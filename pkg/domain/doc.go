// Package domain defines the core types shared by the closure tracer.
//
// This package has ZERO external dependencies outside the Go standard library.
// It describes the runtime model the tracer works against:
//
// - Type and Loader: named runtime types and the mechanism that resolves them
// - Frame: an immutable description of one call stack frame
// - Sentinel errors returned across package boundaries
//
// Infrastructure packages (symbols, config, tracer, hook) implement or consume
// these types. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
