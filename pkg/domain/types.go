package domain

// Type is a named runtime type as seen by the tracer: a declaring function,
// a functional interface, or a synthetic closure implementation.
//
// Implementations must be comparable with identity semantics (pointer
// receivers) because Types are embedded in map keys.
type Type interface {
	// Name returns the fully qualified name of the type.
	Name() string

	// Loader returns the loader that defined the type. It may be nil for
	// types that were not produced by a loader.
	Loader() Loader
}

// Loader resolves names to Types. Two loaders never share Type identities,
// so equal names defined by different loaders never compare equal.
type Loader interface {
	// Resolve returns the Type the loader knows under name.
	Resolve(name string) (Type, bool)
}
