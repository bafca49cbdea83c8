package domain

import (
	"strconv"
	"strings"
)

// Frame describes one call stack frame captured at closure creation.
// Frames are plain values: the registry hands out copies, so changing a
// returned Frame never affects the stored creation site.
type Frame struct {
	Function string
	Class    string
	Method   string
	File     string
	Line     int
}

// NewFrame builds a Frame.
func NewFrame(function, class, method, file string, line int) Frame {
	return Frame{
		Function: function,
		Class:    class,
		Method:   method,
		File:     file,
		Line:     line,
	}
}

// HasFile reports whether the source file is known.
func (f Frame) HasFile() bool { return f.File != "" }

// HasLine reports whether the line number is known.
func (f Frame) HasLine() bool { return f.Line > 0 }

// IsZero reports whether the frame is empty.
func (f Frame) IsZero() bool { return f.Function == "" && f.Class == "" && f.Method == "" }

// String renders the frame as "class.method(file:line)", falling back to
// "class.method(file)" and "class.method(Unknown Source)".
func (f Frame) String() string {
	return f.render()
}

func (f Frame) render() string {
	var b strings.Builder
	if f.Class != "" {
		b.WriteString(f.Class)
		b.WriteByte('.')
	}
	b.WriteString(f.Method)
	b.WriteByte('(')
	switch {
	case f.HasFile() && f.HasLine():
		b.WriteString(f.File)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Line))
	case f.HasFile():
		b.WriteString(f.File)
	default:
		b.WriteString("Unknown Source")
	}
	b.WriteByte(')')
	return b.String()
}
