package config

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/polisai/closure-trace/pkg/domain"
)

// Filter holds the inclusion sets that decide which closures are traced.
// The sets are read once by LoadFilter and never change afterwards.
type Filter struct {
	props   Properties
	sources []string

	lambdaIncludes  Set
	packageIncludes Set

	argOverrides sync.Map // string -> Set
	argGroup     singleflight.Group
}

// FilterOption customizes LoadFilter.
type FilterOption func(*filterOptions)

type filterOptions struct {
	base       Resource
	discoverer Discoverer
}

// WithBase replaces the embedded defaults with another base resource.
func WithBase(r Resource) FilterOption {
	return func(o *filterOptions) { o.base = r }
}

// WithBaseFile uses a file on disk as the base resource.
func WithBaseFile(path string) FilterOption {
	return WithBase(FileResource(path))
}

// WithDiscoverer sets the collaborator that finds override resources.
func WithDiscoverer(d Discoverer) FilterOption {
	return func(o *filterOptions) { o.discoverer = d }
}

// WithSearchPath discovers overrides in the given directories.
func WithSearchPath(dirs ...string) FilterOption {
	return WithDiscoverer(SearchPath(dirs))
}

// LoadFilter reads the base resource, merges every discovered override into
// it in discovery order and parses the inclusion sets.
//
// A base resource that cannot be read is reported as ErrConfigInvalid; the
// tracer cannot filter correctly without its defaults.
func LoadFilter(opts ...FilterOption) (*Filter, error) {
	o := filterOptions{
		base:       EmbeddedDefaults(),
		discoverer: SearchPathFromEnv(),
	}
	for _, fn := range opts {
		fn(&o)
	}

	props, err := ReadProperties(o.base)
	if err != nil {
		return nil, fmt.Errorf("base configuration: %w: %w", domain.ErrConfigInvalid, err)
	}
	sources := []string{o.base.String()}

	if o.discoverer != nil {
		overrides, err := o.discoverer.Discover(OverrideResource)
		if err != nil {
			return nil, fmt.Errorf("discover overrides: %w", err)
		}
		for _, r := range overrides {
			override, err := ReadProperties(r)
			if err != nil {
				return nil, fmt.Errorf("override configuration: %w", err)
			}
			props.Merge(override)
			sources = append(sources, r.String())
		}
	}

	return NewFilter(props, sources...), nil
}

// NewFilter builds a filter from already merged properties.
func NewFilter(props Properties, sources ...string) *Filter {
	props = props.Clone()
	return &Filter{
		props:           props,
		sources:         append([]string(nil), sources...),
		lambdaIncludes:  ParseSet(props[KeyLambdaIncludes]),
		packageIncludes: ParseSet(props[KeyPackageIncludes]),
	}
}

// LambdaIncludes returns the functional interface names that are traced.
func (f *Filter) LambdaIncludes() Set { return f.lambdaIncludes }

// PackageIncludes returns the declaring type prefixes that are traced.
func (f *Filter) PackageIncludes() Set { return f.packageIncludes }

// Properties returns a copy of the merged configuration.
func (f *Filter) Properties() Properties { return f.props.Clone() }

// Sources lists the resources that contributed, base first.
func (f *Filter) Sources() []string { return append([]string(nil), f.sources...) }

// ParseArgumentOverrides parses a registration argument into package
// prefixes. Results are memoized by the exact argument string and concurrent
// first calls for the same string parse once.
func (f *Filter) ParseArgumentOverrides(arg string) Set {
	if s, ok := f.argOverrides.Load(arg); ok {
		return s.(Set)
	}
	v, _, _ := f.argGroup.Do(arg, func() (any, error) {
		s, _ := f.argOverrides.LoadOrStore(arg, ParseSet(arg))
		return s, nil
	})
	return v.(Set)
}

// IncludesPackage reports whether name starts with a static package include
// or with a prefix from arg.
func (f *Filter) IncludesPackage(name, arg string) bool {
	return f.packageIncludes.MatchesPrefix(name) || f.ParseArgumentOverrides(arg).MatchesPrefix(name)
}

// IncludesLambda reports whether the functional interface name is traced.
func (f *Filter) IncludesLambda(name string) bool {
	return f.lambdaIncludes.Contains(name)
}

// Includes applies both dimensions of the filter.
func (f *Filter) Includes(declaring, iface, arg string) bool {
	return f.IncludesPackage(declaring, arg) && f.IncludesLambda(iface)
}
