package domain

import "errors"

// Common domain errors
var (
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrHookUnavailable  = errors.New("closure hook unavailable")
	ErrSymbolUnresolved = errors.New("symbol could not be resolved")
)

// DomainError attaches a stable code and a readable message to a sentinel.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}
