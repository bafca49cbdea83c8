package symbols

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"github.com/polisai/closure-trace/pkg/domain"
)

// Symbol is a named type defined by a Table.
type Symbol struct {
	name  string
	table *Table
}

// Name returns the fully qualified symbol name.
func (s *Symbol) Name() string { return s.name }

// Loader returns the table that defined the symbol.
func (s *Symbol) Loader() domain.Loader { return s.table }

func (s *Symbol) String() string { return s.name }

// Table is a concurrency-safe interning symbol table. The zero value is not
// usable; call NewTable.
type Table struct {
	name    string
	symbols sync.Map // string -> *Symbol
}

// NewTable creates an empty table. The name only appears in diagnostics.
func NewTable(name string) *Table {
	return &Table{name: name}
}

// Define returns the symbol registered under name, creating it on first use.
func (t *Table) Define(name string) *Symbol {
	if s, ok := t.symbols.Load(name); ok {
		return s.(*Symbol)
	}
	s, _ := t.symbols.LoadOrStore(name, &Symbol{name: name, table: t})
	return s.(*Symbol)
}

// Resolve returns a previously defined symbol. Names that were never defined
// through this table do not resolve.
func (t *Table) Resolve(name string) (domain.Type, bool) {
	if name == "" {
		return nil, false
	}
	s, ok := t.symbols.Load(name)
	if !ok {
		return nil, false
	}
	return s.(*Symbol), true
}

// Len returns the number of defined symbols.
func (t *Table) Len() int {
	n := 0
	t.symbols.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (t *Table) String() string { return "symbols.Table(" + t.name + ")" }

// Func defines the symbol of the function value fn and returns it together
// with its entry PC.
func (t *Table) Func(fn any) (*Symbol, uintptr, error) {
	name, pc, err := FuncName(fn)
	if err != nil {
		return nil, 0, err
	}
	return t.Define(name), pc, nil
}

// TypeOf defines the symbol of a reflect type.
func (t *Table) TypeOf(rt reflect.Type) *Symbol {
	return t.Define(TypeName(rt))
}

// FuncName returns the runtime symbol name and entry PC of a function value.
func FuncName(fn any) (string, uintptr, error) {
	if fn == nil {
		return "", 0, fmt.Errorf("nil function: %w", domain.ErrSymbolUnresolved)
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return "", 0, fmt.Errorf("%T is not a function: %w", fn, domain.ErrSymbolUnresolved)
	}
	if v.IsNil() {
		return "", 0, fmt.Errorf("nil %s: %w", v.Type(), domain.ErrSymbolUnresolved)
	}
	pc := v.Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return "", 0, fmt.Errorf("no symbol for pc %#x: %w", pc, domain.ErrSymbolUnresolved)
	}
	return f.Name(), f.Entry(), nil
}

// SourceFile returns the file that defines the function containing pc, or ""
// when the binary carries no position information for it.
func SourceFile(pc uintptr) string {
	f := runtime.FuncForPC(pc)
	if f == nil {
		return ""
	}
	file, _ := f.FileLine(pc)
	return file
}

// TypeName returns the fully qualified name of rt: "pkgpath.Name" for named
// types and the type literal for unnamed ones.
func TypeName(rt reflect.Type) string {
	if rt == nil {
		return ""
	}
	if rt.Name() != "" && rt.PkgPath() != "" {
		return rt.PkgPath() + "." + rt.Name()
	}
	return rt.String()
}
