package tracer

import (
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/polisai/closure-trace/pkg/domain"
)

// MachinerySkip is the number of innermost frames that belong to the
// registry itself: the stack capture, register and Register.
const MachinerySkip = 3

// HookNamespace prefixes every function of the hook package.
const HookNamespace = "github.com/polisai/closure-trace/pkg/hook."

const maxStackDepth = 64

// Stack captures call stacks.
type Stack interface {
	// Frames returns the stack of the function that called Frames,
	// innermost first.
	Frames() []domain.Frame
}

// RuntimeStack captures the current goroutine's stack with runtime.Callers.
type RuntimeStack struct{}

// Frames implements Stack.
func (RuntimeStack) Frames() []domain.Frame {
	pcs := make([]uintptr, maxStackDepth)
	// skip runtime.Callers and Frames
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return nil
	}

	callers := runtime.CallersFrames(pcs[:n])
	out := make([]domain.Frame, 0, n)
	for {
		f, more := callers.Next()
		if f.Function != "" {
			out = append(out, ParseFrame(f.Function, f.File, f.Line))
		}
		if !more {
			break
		}
	}
	return out
}

// ParseFrame splits a Go function symbol into its class (package path plus
// receiver or type) and method.
//
//	example.com/app.(*T).Run.func2 -> class example.com/app.(*T), method Run.func2
//	example.com/app.T.Run          -> class example.com/app.T,    method Run
//	example.com/app.Build.func1    -> class example.com/app,      method Build.func1
func ParseFrame(function, file string, line int) domain.Frame {
	pkg, rest := SplitPackage(function)
	class, method := pkg, rest

	switch {
	case strings.HasPrefix(rest, "("):
		if end := strings.Index(rest, ")."); end > 0 {
			class = pkg + "." + rest[:end+1]
			method = rest[end+2:]
		}
	default:
		head := rest
		if i := strings.IndexByte(head, '['); i >= 0 {
			head = head[:i]
		}
		if dot := strings.IndexByte(head, '.'); dot > 0 && isMethodName(rest[dot+1:]) {
			class = pkg + "." + rest[:dot]
			method = rest[dot+1:]
		}
	}

	if class == "" {
		class, method = "", function
	}
	return domain.NewFrame(function, class, method, file, line)
}

// SplitPackage separates the import path from the rest of a function symbol.
func SplitPackage(function string) (pkg, rest string) {
	head := function
	if i := strings.IndexByte(head, '['); i >= 0 {
		head = head[:i]
	}
	slash := strings.LastIndexByte(head, '/')
	dot := strings.IndexByte(head[slash+1:], '.')
	if dot < 0 {
		return "", function
	}
	dot += slash + 1
	return function[:dot], function[dot+1:]
}

// isMethodName reports whether s starts like a method rather than like a
// compiler generated closure or a nested closure index.
func isMethodName(s string) bool {
	if s == "" || isDigit(s[0]) {
		return false
	}
	if strings.HasPrefix(s, "func") && len(s) > 4 && isDigit(s[4]) {
		return false
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// IsStdlib reports whether a function of package pkg defined in file belongs
// to the Go standard library. Packages whose first path element contains a
// dot, packages of modules linked into the binary, and "main" never do. For
// the remaining dotless paths the source file decides: standard library code
// lives under the Go source root of the toolchain that built the binary.
// When either the file or that root is unknown (stripped or -trimpath
// builds), a dotless path counts as standard library.
func IsStdlib(pkg, file string) bool {
	return isStdlib(pkg, file, goSrc(), buildModules())
}

func isStdlib(pkg, file, src string, modules []string) bool {
	if pkg == "" || pkg == "main" {
		return false
	}
	first := pkg
	if i := strings.IndexByte(pkg, '/'); i >= 0 {
		first = pkg[:i]
	}
	if strings.Contains(first, ".") {
		return false
	}
	for _, mod := range modules {
		if pkg == mod || strings.HasPrefix(pkg, mod+"/") {
			return false
		}
	}
	if src != "" && file != "" {
		return strings.HasPrefix(file, src)
	}
	return true
}

// goSrc is the standard library source root recorded in the binary,
// ending in a slash, or "" when paths were trimmed.
var goSrc = sync.OnceValue(func() string {
	const rel = "strings/strings.go"
	fn := runtime.FuncForPC(reflect.ValueOf(strings.Index).Pointer())
	if fn == nil {
		return ""
	}
	file, _ := fn.FileLine(fn.Entry())
	if !strings.HasSuffix(file, "/"+rel) {
		return ""
	}
	return strings.TrimSuffix(file, rel)
})

// buildModules lists the main module and dependency module paths of the
// running binary.
var buildModules = sync.OnceValue(func() []string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	var mods []string
	if info.Main.Path != "" {
		mods = append(mods, info.Main.Path)
	}
	for _, dep := range info.Deps {
		mods = append(mods, dep.Path)
	}
	return mods
})
