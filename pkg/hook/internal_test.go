package hook

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polisai/closure-trace/pkg/symbols"
)

func TestIsInternal(t *testing.T) {
	stdFile := symbols.SourceFile(reflect.ValueOf(strings.ToUpper).Pointer())
	ownFile := symbols.SourceFile(reflect.ValueOf(TestIsInternal).Pointer())

	tests := []struct {
		name  string
		owner string
		file  string
		want  bool
	}{
		{"hook package", "github.com/polisai/closure-trace/pkg/hook.Install", ownFile, true},
		{"tracer package", "github.com/polisai/closure-trace/pkg/tracer.(*Registry).Register", ownFile, true},
		{"standard library", "strings.ToUpper", stdFile, true},
		{"dotless module", "myapp/internal/svc.Build", "/home/dev/myapp/internal/svc/svc.go", false},
		{"dotted module", "example.com/app.Build", "", false},
		{"hook tests", "github.com/polisai/closure-trace/pkg/hook_test.TestTrace", ownFile, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isInternal(tt.owner, tt.file))
		})
	}
}
