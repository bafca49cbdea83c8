// Package tracekey derives the identity under which a closure's creation
// site is stored.
//
// A key is derived twice for the same closure: once at registration, where
// the declaring type is supplied by the hook, and once at lookup, where only
// the synthetic type is known and the declaring type is recovered from the
// synthetic name through the synthetic type's own loader. Both paths share
// Naming.Split so they agree for every name that follows the convention.
//
// The discriminator is the whole remainder of the synthetic name starting at
// the marker. It is never truncated at a secondary delimiter.
package tracekey

import (
	"strings"

	"github.com/polisai/closure-trace/pkg/domain"
)

// GoMarker separates a Go closure symbol's declaring function from its
// discriminator, as in "example.com/app.Owner.func7".
const GoMarker = ".func"

// GoNaming is the naming convention of closures compiled by gc.
var GoNaming = Naming{Marker: GoMarker}

// Key identifies one closure implementation.
type Key struct {
	Owner domain.Type
	ID    string
}

// IsZero reports whether the key is incomplete.
func (k Key) IsZero() bool { return k.Owner == nil || k.ID == "" }

func (k Key) String() string {
	if k.Owner == nil {
		return "<unknown>" + k.ID
	}
	return k.Owner.Name() + k.ID
}

// Naming describes how synthetic closure names are formed.
type Naming struct {
	Marker string
}

// Split separates a synthetic name into the declaring type name and the
// discriminator. The split happens at the last marker that is followed by a
// decimal digit and lies after the last '/', so package paths and function
// names that contain the marker cannot split early.
func (n Naming) Split(name string) (owner, id string, ok bool) {
	if n.Marker == "" {
		return "", "", false
	}
	base := strings.LastIndexByte(name, '/') + 1
	for end := len(name); end > base; {
		i := strings.LastIndex(name[base:end], n.Marker)
		if i < 0 {
			return "", "", false
		}
		i += base
		next := i + len(n.Marker)
		if i > 0 && next < len(name) && isDigit(name[next]) {
			return name[:i], name[i:], true
		}
		end = i
	}
	return "", "", false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// ForRegistration derives the key when the declaring type is known.
func (n Naming) ForRegistration(declaring, synthetic domain.Type) (Key, bool) {
	if declaring == nil || synthetic == nil {
		return Key{}, false
	}
	_, id, ok := n.Split(synthetic.Name())
	if !ok {
		return Key{}, false
	}
	return Key{Owner: declaring, ID: id}, true
}

// ForLookup derives the key from the synthetic type alone. It reports false
// when the name does not follow the convention or when the declaring type
// cannot be resolved through the synthetic type's loader.
func (n Naming) ForLookup(synthetic domain.Type) (Key, bool) {
	if synthetic == nil {
		return Key{}, false
	}
	owner, id, ok := n.Split(synthetic.Name())
	if !ok {
		return Key{}, false
	}
	loader := synthetic.Loader()
	if loader == nil {
		return Key{}, false
	}
	declaring, ok := loader.Resolve(owner)
	if !ok || declaring == nil {
		return Key{}, false
	}
	return Key{Owner: declaring, ID: id}, true
}
