// Package hook is the interception point that reports closure creation to a
// registry.
//
// Go offers no runtime extension point that observes closure construction,
// so closures are reported by manual instrumentation: application code wraps
// a function literal with Trace at the site that builds it.
//
//	h := hook.Install(registry)
//	handler := hook.Trace(h, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//		...
//	}))
//
// A Hook never lets tracing failures reach the caller. Installation problems
// leave a disabled hook behind and are reported through the logger; panics
// raised while registering are recovered and logged.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/closure-trace/pkg/domain"
	"github.com/polisai/closure-trace/pkg/symbols"
	"github.com/polisai/closure-trace/pkg/telemetry"
	"github.com/polisai/closure-trace/pkg/tracekey"
	"github.com/polisai/closure-trace/pkg/tracer"
)

// Registrar receives one call per closure implementation.
type Registrar interface {
	Register(declaring, iface, synthetic domain.Type, arg string)
}

// Resolver answers creation site queries.
type Resolver interface {
	Lookup(synthetic domain.Type) (domain.Frame, bool)
}

// Namespaces of the tracing library itself. Closures declared there are
// never reported.
var internalNamespaces = []string{
	tracer.HookNamespace,
	"github.com/polisai/closure-trace/pkg/tracer.",
}

// Hook reports closures to a Registrar.
type Hook struct {
	reg     Registrar
	table   *symbols.Table
	naming  tracekey.Naming
	arg     string
	logger  *slog.Logger
	enabled bool

	seen sync.Map // entry pc -> struct{}
}

// Option configures a Hook.
type Option func(*Hook)

// WithTable shares a symbol table between hooks.
func WithTable(t *symbols.Table) Option {
	return func(h *Hook) {
		if t != nil {
			h.table = t
		}
	}
}

// WithArgs sets the free-form argument passed with every registration, a
// comma separated list of extra package prefixes to trace.
func WithArgs(arg string) Option {
	return func(h *Hook) { h.arg = arg }
}

// WithLogger sets the diagnostic logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hook) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithNaming replaces the closure naming convention.
func WithNaming(n tracekey.Naming) Option {
	return func(h *Hook) { h.naming = n }
}

// Install creates a hook reporting to reg. When the runtime does not expose
// closure symbols in the expected form, or reg is nil, the problem is logged
// and the returned hook is disabled; the host keeps running without tracing.
func Install(reg Registrar, opts ...Option) *Hook {
	h := &Hook{
		reg:    reg,
		table:  symbols.NewTable("process"),
		naming: tracekey.GoNaming,
		logger: slog.Default(),
	}
	for _, fn := range opts {
		fn(h)
	}

	if err := h.probe(); err != nil {
		h.logger.Warn("closure tracing unavailable", "error", err)
		return h
	}
	h.enabled = true
	return h
}

func (h *Hook) probe() error {
	if h.reg == nil {
		return fmt.Errorf("%w: no registrar", domain.ErrHookUnavailable)
	}
	probe := func() {}
	name, _, err := symbols.FuncName(probe)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrHookUnavailable, err)
	}
	if _, _, ok := h.naming.Split(name); !ok {
		return fmt.Errorf("%w: closure symbol %q does not follow the %q convention", domain.ErrHookUnavailable, name, h.naming.Marker)
	}
	return nil
}

// Enabled reports whether the hook reports closures.
func (h *Hook) Enabled() bool { return h != nil && h.enabled }

// Table returns the symbol table the hook defines types in.
func (h *Hook) Table() *symbols.Table { return h.table }

// Observe forwards one closure creation to the registrar. Panics raised by
// the registrar are recovered and logged.
func (h *Hook) Observe(declaring, iface, synthetic domain.Type, arg string) {
	if !h.Enabled() {
		return
	}
	defer h.recoverPanic(synthetic)
	h.reg.Register(declaring, iface, synthetic, arg)
}

func (h *Hook) recoverPanic(synthetic domain.Type) {
	if rec := recover(); rec != nil {
		name := "<nil>"
		if synthetic != nil {
			name = synthetic.Name()
		}
		h.logger.Error("closure registration failed", "synthetic", name, "panic", rec)
	}
}

// Trace reports the closure fn once per closure implementation and returns
// it unchanged. The functional interface is the static type F.
func Trace[F any](h *Hook, fn F) F {
	if h.Enabled() {
		h.trace(fn, reflect.TypeFor[F]())
	}
	return fn
}

// TraceContext is Trace that also records the closure's creation site on
// the span carried by ctx.
func TraceContext[F any](ctx context.Context, h *Hook, fn F) F {
	if !h.Enabled() {
		return fn
	}
	if synthetic := h.trace(fn, reflect.TypeFor[F]()); synthetic != nil {
		if frame, ok := h.lookup(synthetic); ok {
			telemetry.RecordCreationSite(trace.SpanFromContext(ctx), synthetic.Name(), frame)
		}
	}
	return fn
}

func (h *Hook) trace(fn any, iface reflect.Type) *symbols.Symbol {
	name, pc, err := symbols.FuncName(fn)
	if err != nil {
		return nil
	}
	owner, _, ok := h.naming.Split(name)
	if !ok || isInternal(owner, symbols.SourceFile(pc)) {
		return nil
	}

	synthetic := h.table.Define(name)
	if _, loaded := h.seen.LoadOrStore(pc, struct{}{}); loaded {
		return synthetic
	}
	h.Observe(h.table.Define(owner), h.table.TypeOf(iface), synthetic, h.arg)
	return synthetic
}

// Lookup returns the creation site of the closure fn, when the registrar
// can answer queries and fn was traced.
func (h *Hook) Lookup(fn any) (domain.Frame, bool) {
	if h == nil {
		return domain.Frame{}, false
	}
	name, _, err := symbols.FuncName(fn)
	if err != nil {
		return domain.Frame{}, false
	}
	synthetic, ok := h.table.Resolve(name)
	if !ok {
		return domain.Frame{}, false
	}
	return h.lookup(synthetic)
}

func (h *Hook) lookup(synthetic domain.Type) (domain.Frame, bool) {
	resolver, ok := h.reg.(Resolver)
	if !ok {
		return domain.Frame{}, false
	}
	return resolver.Lookup(synthetic)
}

func isInternal(owner, file string) bool {
	for _, ns := range internalNamespaces {
		if strings.HasPrefix(owner, ns) {
			return true
		}
	}
	pkg, _ := tracer.SplitPackage(owner)
	return tracer.IsStdlib(pkg, file)
}
