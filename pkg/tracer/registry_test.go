package tracer

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polisai/closure-trace/pkg/config"
	"github.com/polisai/closure-trace/pkg/domain"
	"github.com/polisai/closure-trace/pkg/logging"
	"github.com/polisai/closure-trace/pkg/symbols"
	"github.com/polisai/closure-trace/pkg/telemetry"
)

const (
	ownerName = "example.com/app.Owner"
	ifaceName = "example.com/app.Callback"
)

type fakeStack []domain.Frame

func (s fakeStack) Frames() []domain.Frame { return s }

type countingRecorder struct {
	mu            sync.Mutex
	registrations map[telemetry.Outcome]int
	hits, misses  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{registrations: map[telemetry.Outcome]int{}}
}

func (c *countingRecorder) RecordRegistration(o telemetry.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[o]++
}

func (c *countingRecorder) RecordLookup(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func newFilter(packages, lambdas string) *config.Filter {
	return config.NewFilter(config.Properties{
		config.KeyPackageIncludes: packages,
		config.KeyLambdaIncludes:  lambdas,
	})
}

func appFrame(name string, line int) domain.Frame {
	return ParseFrame(name, "/src/app/app.go", line)
}

// stdFile places rel under the standard library source root of this binary.
func stdFile(rel string) string { return goSrc() + rel }

// machinery returns placeholder frames for the registry's own calls.
func machinery() fakeStack {
	var frames fakeStack
	for i := 0; i < MachinerySkip; i++ {
		frames = append(frames, appFrame(fmt.Sprintf("github.com/polisai/closure-trace/pkg/tracer.machinery%d", i), i))
	}
	return frames
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	tbl := symbols.NewTable("test")
	declaring := tbl.Define(ownerName)
	iface := tbl.Define(ifaceName)
	synthetic := tbl.Define(ownerName + ".func1")

	rec := newCountingRecorder()
	r := New(newFilter("example.com/app", ifaceName), WithRecorder(rec))

	r.Register(declaring, iface, synthetic, "")

	frame, ok := r.Lookup(synthetic)
	require.True(t, ok)
	assert.Equal(t, "github.com/polisai/closure-trace/pkg/tracer.TestRegistry_RegisterAndLookup", frame.Function)
	assert.Equal(t, "github.com/polisai/closure-trace/pkg/tracer", frame.Class)
	assert.Equal(t, "TestRegistry_RegisterAndLookup", frame.Method)
	assert.True(t, frame.HasLine())
	assert.Contains(t, frame.File, "registry_test.go")
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, rec.registrations[telemetry.OutcomeIncluded])
	assert.Equal(t, 1, rec.hits)

	rendered := frame.String()
	frame.Line = -1
	again, ok := r.Lookup(synthetic)
	require.True(t, ok)
	assert.Equal(t, rendered, again.String())
}

func TestRegistry_IsIncludedTruthTable(t *testing.T) {
	tbl := symbols.NewTable("test")
	r := New(newFilter("example.com/app", ifaceName))

	inPkg := tbl.Define(ownerName)
	outPkg := tbl.Define("example.com/other.Owner")
	inIface := tbl.Define(ifaceName)
	outIface := tbl.Define("example.com/app.Other")

	tests := []struct {
		declaring domain.Type
		iface     domain.Type
		want      bool
	}{
		{inPkg, inIface, true},
		{inPkg, outIface, false},
		{outPkg, inIface, false},
		{outPkg, outIface, false},
	}
	for _, tt := range tests {
		t.Run(tt.declaring.Name()+"@"+tt.iface.Name(), func(t *testing.T) {
			assert.Equal(t, tt.want, r.IsIncluded(tt.declaring, tt.iface, ""))
		})
	}

	assert.True(t, r.IsIncluded(outPkg, inIface, "example.com/other"))
	assert.False(t, r.IsIncluded(outPkg, outIface, "example.com/other"))
	assert.False(t, r.IsIncluded(nil, inIface, ""))
	assert.False(t, r.IsIncluded(inPkg, nil, ""))
}

func TestRegistry_IsIncludedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pkgIncluded := rapid.Bool().Draw(t, "pkgIncluded")
		argIncluded := rapid.Bool().Draw(t, "argIncluded")
		ifaceIncluded := rapid.Bool().Draw(t, "ifaceIncluded")

		tbl := symbols.NewTable("prop")
		declaring := tbl.Define("example.com/arg.Owner")
		if pkgIncluded {
			declaring = tbl.Define(ownerName)
		}
		iface := tbl.Define("example.com/app.Other")
		if ifaceIncluded {
			iface = tbl.Define(ifaceName)
		}
		arg := ""
		if argIncluded {
			arg = "example.com/arg"
		}

		r := New(newFilter("example.com/app", ifaceName))
		want := (pkgIncluded || argIncluded) && ifaceIncluded
		if got := r.IsIncluded(declaring, iface, arg); got != want {
			t.Fatalf("IsIncluded(%s, %s, %q) = %v, want %v", declaring.Name(), iface.Name(), arg, got, want)
		}
	})
}

func TestRegistry_ExcludedRegistrationSkipsStackWalk(t *testing.T) {
	tbl := symbols.NewTable("test")
	walked := 0
	stack := stackFunc(func() []domain.Frame {
		walked++
		return nil
	})
	rec := newCountingRecorder()
	r := New(newFilter("example.com/app", ifaceName), WithStack(stack), WithRecorder(rec))

	synthetic := tbl.Define("example.com/other.Owner.func1")
	r.Register(tbl.Define("example.com/other.Owner"), tbl.Define(ifaceName), synthetic, "")

	_, ok := r.Lookup(synthetic)
	assert.False(t, ok)
	assert.Zero(t, walked)
	assert.Zero(t, r.Len())
	assert.Equal(t, 1, rec.registrations[telemetry.OutcomeSkipped])
	assert.Equal(t, 1, rec.misses)
}

type stackFunc func() []domain.Frame

func (f stackFunc) Frames() []domain.Frame { return f() }

func TestRegistry_CapturesFirstFramePastMachinery(t *testing.T) {
	const k = 3

	frames := machinery()
	frames = append(frames,
		ParseFrame(HookNamespace+"Trace[...]", "/src/hook/hook.go", 10),
		ParseFrame("reflect.Value.Call", stdFile("reflect/value.go"), 20),
		ParseFrame("sync.(*Once).doSlow", stdFile("sync/once.go"), 30),
	)
	require.Len(t, frames, MachinerySkip+k)
	frames = append(frames,
		appFrame("example.com/app.Owner.Build", 100),
		appFrame("example.com/app.main", 200),
	)

	tbl := symbols.NewTable("test")
	synthetic := tbl.Define(ownerName + ".func1")
	r := New(newFilter("example.com/app", ifaceName), WithStack(frames))
	r.Register(tbl.Define(ownerName), tbl.Define(ifaceName), synthetic, "")

	got, ok := r.Lookup(synthetic)
	require.True(t, ok)
	assert.Equal(t, frames[MachinerySkip+k], got)
	assert.Equal(t, 100, got.Line)
}

func TestRegistry_NoFrameStoresNothing(t *testing.T) {
	frames := append(machinery(),
		ParseFrame("runtime.goexit", stdFile("runtime/asm_amd64.s"), 3),
		ParseFrame(HookNamespace+"(*Hook).Observe", "/src/hook/hook.go", 4),
	)

	tbl := symbols.NewTable("test")
	synthetic := tbl.Define(ownerName + ".func1")
	rec := newCountingRecorder()
	r := New(newFilter("example.com/app", ifaceName), WithStack(frames), WithRecorder(rec))
	r.Register(tbl.Define(ownerName), tbl.Define(ifaceName), synthetic, "")

	_, ok := r.Lookup(synthetic)
	assert.False(t, ok)
	assert.Equal(t, 1, rec.registrations[telemetry.OutcomeNoFrame])

	r = New(newFilter("example.com/app", ifaceName), WithStack(fakeStack{frames[0]}))
	r.Register(tbl.Define(ownerName), tbl.Define(ifaceName), synthetic, "")
	assert.Zero(t, r.Len())
}

func TestRegistry_DotlessModuleFrames(t *testing.T) {
	const declaring = "myapp/internal/svc.Build"
	frames := append(machinery(),
		ParseFrame("myapp/internal/svc.createSite", "/home/dev/myapp/internal/svc/svc.go", 12),
		ParseFrame("testing.tRunner", stdFile("testing/testing.go"), 40),
		ParseFrame("runtime.goexit", stdFile("runtime/asm_amd64.s"), 50),
	)

	tbl := symbols.NewTable("test")
	synthetic := tbl.Define(declaring + ".func1")
	r := New(newFilter("myapp/", ifaceName), WithStack(frames))
	r.Register(tbl.Define(declaring), tbl.Define(ifaceName), synthetic, "")

	got, ok := r.Lookup(synthetic)
	require.True(t, ok)
	assert.Equal(t, "myapp/internal/svc.createSite", got.Function)
	assert.Equal(t, 12, got.Line)
}

func TestRegistry_StdlibFramesOption(t *testing.T) {
	frames := append(machinery(),
		ParseFrame("sync.(*Once).Do", stdFile("sync/once.go"), 3),
	)
	tbl := symbols.NewTable("test")
	synthetic := tbl.Define(ownerName + ".func1")
	r := New(newFilter("example.com/app", ifaceName), WithStack(frames), WithStdlibFrames())
	r.Register(tbl.Define(ownerName), tbl.Define(ifaceName), synthetic, "")

	got, ok := r.Lookup(synthetic)
	require.True(t, ok)
	assert.Equal(t, "sync.(*Once)", got.Class)
}

func TestRegistry_ExcludedNamespaces(t *testing.T) {
	frames := append(machinery(),
		appFrame("example.com/framework.Dispatch", 3),
		appFrame("example.com/app.Owner", 4),
	)
	tbl := symbols.NewTable("test")
	synthetic := tbl.Define(ownerName + ".func1")
	r := New(newFilter("example.com/app", ifaceName), WithStack(frames), WithExcludedNamespaces("example.com/framework."))
	r.Register(tbl.Define(ownerName), tbl.Define(ifaceName), synthetic, "")

	got, ok := r.Lookup(synthetic)
	require.True(t, ok)
	assert.Equal(t, 4, got.Line)
}

func TestRegistry_NameWithoutMarker(t *testing.T) {
	tbl := symbols.NewTable("test")
	synthetic := tbl.Define(ownerName)
	rec := newCountingRecorder()
	r := New(newFilter("example.com/app", ifaceName), WithRecorder(rec))

	r.Register(tbl.Define(ownerName), tbl.Define(ifaceName), synthetic, "")

	assert.Zero(t, r.Len())
	assert.Equal(t, 1, rec.registrations[telemetry.OutcomeNoKey])
	_, ok := r.Lookup(synthetic)
	assert.False(t, ok)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := New(nil)
	tbl := symbols.NewTable("test")

	_, ok := r.Lookup(tbl.Define("example.com/app.Never.func1"))
	assert.False(t, ok)
	_, ok = r.Lookup(nil)
	assert.False(t, ok)
}

func TestRegistry_LoadersDoNotAlias(t *testing.T) {
	one := symbols.NewTable("one")
	two := symbols.NewTable("two")
	r := New(newFilter("example.com/app", ifaceName))

	r.Register(one.Define(ownerName), one.Define(ifaceName), one.Define(ownerName+".func1"), "")
	two.Define(ownerName)

	_, ok := r.Lookup(one.Define(ownerName + ".func1"))
	assert.True(t, ok)
	_, ok = r.Lookup(two.Define(ownerName + ".func1"))
	assert.False(t, ok)
}

func TestRegistry_DebugLog(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "info", Output: &buf})
	tbl := symbols.NewTable("test")
	r := New(newFilter("example.com/app", ifaceName), WithDebug(true), WithLogger(logger), WithID("reg-1"))

	r.Register(tbl.Define(ownerName), tbl.Define(ifaceName), tbl.Define(ownerName+".func1"), "")
	r.Register(tbl.Define("example.com/other.Owner"), tbl.Define(ifaceName), tbl.Define("example.com/other.Owner.func1"), "")

	out := buf.String()
	assert.Contains(t, out, `msg="including closure"`)
	assert.Contains(t, out, `msg="skipping closure"`)
	assert.Contains(t, out, "synthetic=example.com/other.Owner.func1")
	assert.Contains(t, out, "registry=reg-1")
	assert.Equal(t, "reg-1", r.ID())
}

func TestRegistry_NoDebugLogByDefault(t *testing.T) {
	var buf bytes.Buffer
	tbl := symbols.NewTable("test")
	r := New(newFilter("example.com/app", ifaceName), WithLogger(logging.New(logging.Config{Output: &buf})))

	r.Register(tbl.Define(ownerName), tbl.Define(ifaceName), tbl.Define(ownerName+".func1"), "")
	assert.Empty(t, buf.String())
}

func TestRegistry_ConcurrentRegisterAndLookup(t *testing.T) {
	const total = 1000
	const workers = 8

	tbl := symbols.NewTable("test")
	declaring := tbl.Define(ownerName)
	iface := tbl.Define(ifaceName)

	synthetic := make([]*symbols.Symbol, total)
	for i := range synthetic {
		synthetic[i] = tbl.Define(ownerName + ".func" + strconv.Itoa(i+1))
	}

	r := New(newFilter("example.com/app", ifaceName))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < total; i += workers {
				if i%2 == 0 {
					registerFromEven(r, declaring, iface, synthetic[i])
				} else {
					registerFromOdd(r, declaring, iface, synthetic[i])
				}
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, total, r.Len())
	for i := 0; i < total; i++ {
		got, ok := r.Lookup(synthetic[i])
		require.True(t, ok, "missing trace for %s", synthetic[i].Name())
		want := "registerFromOdd"
		if i%2 == 0 {
			want = "registerFromEven"
		}
		assert.Equal(t, want, got.Method, "wrong frame for %s", synthetic[i].Name())
	}
}

//go:noinline
func registerFromEven(r *Registry, declaring, iface, synthetic domain.Type) {
	r.Register(declaring, iface, synthetic, "")
}

//go:noinline
func registerFromOdd(r *Registry, declaring, iface, synthetic domain.Type) {
	r.Register(declaring, iface, synthetic, "")
}
