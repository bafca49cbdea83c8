package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// EnvSearchPath lists the directories searched for override resources.
const EnvSearchPath = "CLOSURETRACE_PATH"

// Discoverer finds every resource with the given name, in precedence order.
type Discoverer interface {
	Discover(name string) ([]Resource, error)
}

// SearchPath discovers resources in an ordered list of directories.
type SearchPath []string

// SearchPathFromEnv splits CLOSURETRACE_PATH on the OS list separator.
func SearchPathFromEnv() SearchPath {
	return ParseSearchPath(os.Getenv(EnvSearchPath))
}

// ParseSearchPath splits a list of directories on the OS list separator.
// Empty entries are dropped.
func ParseSearchPath(list string) SearchPath {
	var out SearchPath
	for _, dir := range filepath.SplitList(list) {
		if dir = strings.TrimSpace(dir); dir != "" {
			out = append(out, dir)
		}
	}
	return out
}

// Discover returns the resource for every directory that contains name.
// Missing directories and files are skipped.
func (sp SearchPath) Discover(name string) ([]Resource, error) {
	var found []Resource
	for _, dir := range sp {
		dirFS := os.DirFS(dir)
		info, err := fs.Stat(dirFS, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", filepath.Join(dir, name), err)
		}
		if info.IsDir() {
			continue
		}
		found = append(found, Resource{FS: dirFS, Path: name, Origin: dir})
	}
	return found, nil
}
