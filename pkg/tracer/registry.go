package tracer

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/polisai/closure-trace/pkg/config"
	"github.com/polisai/closure-trace/pkg/domain"
	"github.com/polisai/closure-trace/pkg/telemetry"
	"github.com/polisai/closure-trace/pkg/tracekey"
)

// Registry maps closure trace keys to creation site frames. It is safe for
// concurrent use.
type Registry struct {
	id       string
	filter   *config.Filter
	naming   tracekey.Naming
	stack    Stack
	excluded []string
	stdlib   bool
	debug    bool
	logger   *slog.Logger
	recorder telemetry.Recorder
	journal  *Journal

	mu     sync.RWMutex
	traces map[tracekey.Key]domain.Frame
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for debug lines. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDebug logs one line per registration stating whether it was included.
func WithDebug(debug bool) Option {
	return func(r *Registry) { r.debug = debug }
}

// WithNaming replaces the closure naming convention.
func WithNaming(n tracekey.Naming) Option {
	return func(r *Registry) { r.naming = n }
}

// WithStack replaces the stack source.
func WithStack(s Stack) Option {
	return func(r *Registry) {
		if s != nil {
			r.stack = s
		}
	}
}

// WithExcludedNamespaces adds function name prefixes that are never reported
// as creation sites.
func WithExcludedNamespaces(prefixes ...string) Option {
	return func(r *Registry) { r.excluded = append(r.excluded, prefixes...) }
}

// WithStdlibFrames reports standard library frames as creation sites
// instead of skipping them.
func WithStdlibFrames() Option {
	return func(r *Registry) { r.stdlib = false }
}

// WithRecorder replaces the activity recorder.
func WithRecorder(rec telemetry.Recorder) Option {
	return func(r *Registry) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithJournal keeps the last capacity registration decisions for Recent.
func WithJournal(capacity int) Option {
	return func(r *Registry) { r.journal = NewJournal(capacity) }
}

// WithID sets the registry id used in logs and metrics.
func WithID(id string) Option {
	return func(r *Registry) {
		if id != "" {
			r.id = id
		}
	}
}

// New creates a registry that filters registrations with filter.
func New(filter *config.Filter, opts ...Option) *Registry {
	if filter == nil {
		filter = config.NewFilter(nil)
	}
	r := &Registry{
		id:       uuid.NewString(),
		filter:   filter,
		naming:   tracekey.GoNaming,
		stack:    RuntimeStack{},
		excluded: []string{HookNamespace},
		stdlib:   true,
		logger:   slog.Default(),
		traces:   make(map[tracekey.Key]domain.Frame),
	}
	for _, fn := range opts {
		fn(r)
	}
	if r.recorder == nil {
		r.recorder = telemetry.OTelRecorder{RegistryID: r.id}
	}
	return r
}

// ID returns the registry id.
func (r *Registry) ID() string { return r.id }

// Register records the creation site of the synthetic closure type. It is
// called once per closure implementation with the declaring type, the
// functional interface type, the synthetic type and the free-form argument
// string. Excluded closures cost no stack walk.
func (r *Registry) Register(declaring, iface, synthetic domain.Type, arg string) {
	included := r.IsIncluded(declaring, iface, arg)
	if r.debug {
		r.logDecision(included, declaring, iface, synthetic)
	}
	outcome, frame := r.register(included, declaring, synthetic)
	r.recorder.RecordRegistration(outcome)
	if r.journal != nil {
		r.journal.Add(Decision{
			Declaring: typeName(declaring),
			Interface: typeName(iface),
			Synthetic: typeName(synthetic),
			Outcome:   outcome,
			Frame:     frame,
		})
	}
}

func (r *Registry) register(included bool, declaring, synthetic domain.Type) (telemetry.Outcome, domain.Frame) {
	if !included {
		return telemetry.OutcomeSkipped, domain.Frame{}
	}

	key, ok := r.naming.ForRegistration(declaring, synthetic)
	if !ok {
		return telemetry.OutcomeNoKey, domain.Frame{}
	}

	frame, ok := r.captureSite()
	if !ok {
		return telemetry.OutcomeNoFrame, domain.Frame{}
	}

	r.mu.Lock()
	r.traces[key] = frame
	r.mu.Unlock()
	return telemetry.OutcomeIncluded, frame
}

// IsIncluded reports whether the declaring type name starts with a static or
// argument supplied package prefix and the functional interface name is an
// exact lambda include. Both conditions are required.
func (r *Registry) IsIncluded(declaring, iface domain.Type, arg string) bool {
	if declaring == nil || iface == nil {
		return false
	}
	return r.filter.Includes(declaring.Name(), iface.Name(), arg)
}

// Lookup returns the creation site of the synthetic closure type. Types that
// were never registered, or whose names do not follow the naming
// convention, are reported as absent.
func (r *Registry) Lookup(synthetic domain.Type) (domain.Frame, bool) {
	key, ok := r.naming.ForLookup(synthetic)
	if !ok {
		r.recorder.RecordLookup(false)
		return domain.Frame{}, false
	}

	r.mu.RLock()
	frame, ok := r.traces[key]
	r.mu.RUnlock()

	r.recorder.RecordLookup(ok)
	return frame, ok
}

// Len returns the number of stored traces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.traces)
}

// Recent returns the journaled registration decisions, oldest first, or nil
// when the registry was built without WithJournal.
func (r *Registry) Recent() []Decision {
	if r.journal == nil {
		return nil
	}
	return r.journal.All()
}

// captureSite must only be called from register; MachinerySkip counts it.
func (r *Registry) captureSite() (domain.Frame, bool) {
	return r.firstApplicationFrame(r.stack.Frames())
}

func (r *Registry) firstApplicationFrame(frames []domain.Frame) (domain.Frame, bool) {
	if len(frames) <= MachinerySkip {
		return domain.Frame{}, false
	}
	for _, f := range frames[MachinerySkip:] {
		if !r.isExcluded(f) {
			return f, true
		}
	}
	return domain.Frame{}, false
}

func (r *Registry) isExcluded(f domain.Frame) bool {
	for _, prefix := range r.excluded {
		if strings.HasPrefix(f.Function, prefix) {
			return true
		}
	}
	if r.stdlib {
		pkg, _ := SplitPackage(f.Function)
		return IsStdlib(pkg, f.File)
	}
	return false
}

func (r *Registry) logDecision(included bool, declaring, iface, synthetic domain.Type) {
	msg := "skipping closure"
	if included {
		msg = "including closure"
	}
	r.logger.Info(msg,
		"registry", r.id,
		"declaring", typeName(declaring),
		"interface", typeName(iface),
		"synthetic", typeName(synthetic),
	)
}

func typeName(t domain.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}
