package config

import (
	"sort"
	"strings"
)

// Set is an immutable set of strings.
type Set struct {
	items map[string]struct{}
}

// ParseSet splits a comma separated list into a Set. Segments are trimmed
// and empty segments are discarded.
func ParseSet(list string) Set {
	items := make(map[string]struct{})
	for _, seg := range strings.Split(list, ",") {
		if seg = strings.TrimSpace(seg); seg != "" {
			items[seg] = struct{}{}
		}
	}
	return Set{items: items}
}

// NewSet builds a Set from values.
func NewSet(values ...string) Set {
	items := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			items[v] = struct{}{}
		}
	}
	return Set{items: items}
}

// Len returns the number of entries.
func (s Set) Len() int { return len(s.items) }

// Contains reports whether v is an exact member.
func (s Set) Contains(v string) bool {
	_, ok := s.items[v]
	return ok
}

// MatchesPrefix reports whether any member is a prefix of name.
func (s Set) MatchesPrefix(name string) bool {
	for prefix := range s.items {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Values returns the members in lexical order.
func (s Set) Values() []string {
	out := make([]string, 0, len(s.items))
	for v := range s.items {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// MarshalYAML renders the set as a sorted sequence.
func (s Set) MarshalYAML() (any, error) {
	return s.Values(), nil
}
