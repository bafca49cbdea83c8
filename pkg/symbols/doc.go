// Package symbols is the Go-native loader used by the closure tracer.
//
// A Table interns Symbols by name, so every lookup of the same name through
// the same Table yields the same identity and names defined in different
// Tables never alias. Helpers extract symbol names from function values with
// runtime.FuncForPC and from reflect types.
package symbols
