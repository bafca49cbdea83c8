package tracer

import "sync"

// Lazy constructs a Registry on first use. Every caller of Get observes the
// same registry and error, however many race on the first call.
type Lazy struct {
	get func() (*Registry, error)
}

// NewLazy wraps a registry constructor.
func NewLazy(build func() (*Registry, error)) *Lazy {
	return &Lazy{get: sync.OnceValues(build)}
}

// Get returns the registry, constructing it on the first call.
func (l *Lazy) Get() (*Registry, error) {
	return l.get()
}
