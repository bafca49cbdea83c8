package config

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
)

// Recognized property keys.
const (
	KeyLambdaIncludes  = "lambda.includes"
	KeyPackageIncludes = "package.includes"
)

// Resource names looked up by the filter loader.
const (
	DefaultsResource = "closuretrace-defaults.properties"
	OverrideResource = "closuretrace.properties"
)

//go:embed closuretrace-defaults.properties
var defaultsFS embed.FS

// Resource is a named properties file inside a file system. Origin describes
// where the file system lives and only appears in diagnostics.
type Resource struct {
	FS     fs.FS
	Path   string
	Origin string
}

// EmbeddedDefaults returns the base resource compiled into the binary.
func EmbeddedDefaults() Resource {
	return Resource{FS: defaultsFS, Path: DefaultsResource, Origin: "embedded"}
}

// FileResource returns a resource backed by a file on disk.
func FileResource(path string) Resource {
	dir := filepath.Dir(path)
	return Resource{FS: os.DirFS(dir), Path: filepath.Base(path), Origin: dir}
}

func (r Resource) String() string {
	if r.Origin == "" {
		return r.Path
	}
	return r.Origin + ":" + r.Path
}

// Properties is a set of key=value pairs.
type Properties map[string]string

// ReadProperties reads and parses a key=value resource.
func ReadProperties(r Resource) (Properties, error) {
	if r.FS == nil {
		return nil, fmt.Errorf("resource %q has no file system", r.Path)
	}
	data, err := fs.ReadFile(r.FS, r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r, err)
	}
	props, err := ParseProperties(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", r, err)
	}
	return props, nil
}

// ParseProperties parses key=value lines in the dotenv dialect. Lines
// starting with '#' are comments, and so is anything after " #" on a line.
// $NAME and ${NAME} in unquoted values expand to earlier keys of the same
// file or to the environment, and to nothing when neither defines them.
// Keys may only hold letters, digits, '.' and '_'; any other key character
// fails the whole resource.
func ParseProperties(data []byte) (Properties, error) {
	env, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return Properties(env), nil
}

// Merge folds override into p. Keys present in both are comma joined with the
// base value first; keys present in only one side keep that side's value.
func (p Properties) Merge(override Properties) {
	for k, v := range override {
		p[k] = mergeValue(p[k], v)
	}
}

func mergeValue(base, override string) string {
	switch {
	case base == "":
		return override
	case override == "":
		return base
	default:
		return base + "," + override
	}
}

// Keys returns the property keys in lexical order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of p.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
