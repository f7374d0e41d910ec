package npm

import (
	"sort"

	"github.com/canopyscan/canopy/pkg/cache"
)

// ModuleInfo is one resolved node of the dependency forest.
//
// WorkingDir and ManifestPath are provenance only: the same logical
// dependency is routinely discovered through different filesystem paths
// in hoisted installs, so provenance is excluded from identity. Two
// ModuleInfo values are identical iff their IDs and recursive dependency
// structures match; see [ModuleInfo.Key].
type ModuleInfo struct {
	ID           PackageID
	WorkingDir   string
	ManifestPath string
	Dependencies []*ModuleInfo
	IsProject    bool

	key string // cached identity key
}

// Key returns the identity key: the package id combined with a hash over
// the sorted identity keys of all direct dependencies. Computing the key
// bottoms out because resolved forests are cycle-free.
//
// The key is computed once and cached; callers must not mutate
// Dependencies after the first call.
func (m *ModuleInfo) Key() string {
	if m.key != "" {
		return m.key
	}
	childKeys := make([]string, len(m.Dependencies))
	for i, d := range m.Dependencies {
		childKeys[i] = d.Key()
	}
	sort.Strings(childKeys)

	h := m.ID.String()
	for _, k := range childKeys {
		h += "\n" + k
	}
	m.key = m.ID.String() + "#" + cache.Hash([]byte(h))[:16]
	return m.key
}

// Equal reports whether two nodes are the same logical dependency,
// provenance excluded.
func (m *ModuleInfo) Equal(other *ModuleInfo) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.Key() == other.Key()
}

// Flatten returns every node reachable from m (m included), de-duplicated
// by identity key.
func (m *ModuleInfo) Flatten() []*ModuleInfo {
	var out []*ModuleInfo
	seen := make(map[string]bool)
	stack := []*ModuleInfo{m}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n.Key()] {
			continue
		}
		seen[n.Key()] = true
		out = append(out, n)
		stack = append(stack, n.Dependencies...)
	}
	return out
}
