package npm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

// Scope is a declared dependency category in package.json.
type Scope string

const (
	// ScopeProd covers the "dependencies" block.
	ScopeProd Scope = "dependencies"
	// ScopeDev covers the "devDependencies" block.
	ScopeDev Scope = "devDependencies"
	// ScopeOptional covers the "optionalDependencies" block. Optional
	// dependencies are merged into prod for resolution purposes: a
	// missing optional dependency is expected, not an error.
	ScopeOptional Scope = "optionalDependencies"
)

// commentKey is the ecosystem convention for comments inside dependency
// blocks; it never names a real package.
const commentKey = "//"

// AllScopes lists every supported scope.
var AllScopes = []Scope{ScopeProd, ScopeDev, ScopeOptional}

// transitiveScopes are the scopes requested when recursing below a direct
// dependency: installed transitive deps always resolve at prod level.
var transitiveScopes = []Scope{ScopeProd, ScopeOptional}

// Manifest is the parsed, read-only view of one package.json restricted
// to the fields resolution needs. Name and version may be empty for
// unpublished packages.
type Manifest struct {
	Name            string
	Version         string
	Path            string
	DependencyNames []string // merged names for the requested scopes, sorted
}

// manifestFile mirrors the raw package.json shape.
type manifestFile struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	Workspaces           workspacePatterns `json:"workspaces"`
}

// workspacePatterns tolerates both declaration forms:
// "workspaces": ["packages/*"] and "workspaces": {"packages": [...]}.
type workspacePatterns []string

func (w *workspacePatterns) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*w = list
		return nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*w = obj.Packages
	return nil
}

func (f *manifestFile) scope(s Scope) map[string]string {
	switch s {
	case ScopeProd:
		return f.Dependencies
	case ScopeDev:
		return f.DevDependencies
	case ScopeOptional:
		return f.OptionalDependencies
	}
	return nil
}

// manifestReader parses package.json files, memoizing results per
// (directory, requested-scope-set) pair. The memo lives for one
// resolution run only; the same file is read once regardless of how many
// recursion paths reach it.
type manifestReader struct {
	log  *log.Logger
	memo map[string]*Manifest
}

func newManifestReader(logger *log.Logger) *manifestReader {
	return &manifestReader{log: logger, memo: make(map[string]*Manifest)}
}

func memoKey(dir string, scopes []Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	sort.Strings(parts)
	return dir + "|" + strings.Join(parts, ",")
}

// read parses the manifest in dir for the given scopes.
func (r *manifestReader) read(dir string, scopes []Scope) (*Manifest, error) {
	key := memoKey(dir, scopes)
	if m, ok := r.memo[key]; ok {
		return m, nil
	}

	path := filepath.Join(dir, "package.json")
	raw, err := parseManifestFile(path)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Name:    raw.Name,
		Version: raw.Version,
		Path:    path,
	}
	seen := make(map[string]bool)
	for _, s := range scopes {
		for name := range raw.scope(s) {
			if name == commentKey || seen[name] {
				continue
			}
			seen[name] = true
			m.DependencyNames = append(m.DependencyNames, name)
		}
	}
	sort.Strings(m.DependencyNames)

	if m.Name == "" {
		r.log.Warn("manifest has no name", "path", path)
	}
	if m.Version == "" {
		r.log.Warn("manifest has no version", "path", path)
	}

	r.memo[key] = m
	return m, nil
}

func parseManifestFile(path string) (*manifestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var raw manifestFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &raw, nil
}
