package npm

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// walker resolves declared dependency names against installed module
// directories. It implements the filesystem acquisition strategy used
// when no tool tree listing is available (plain npm installs).
type walker struct {
	log         *log.Logger
	manifests   *manifestReader
	projectDirs map[string]bool // symlink-resolved workspace project roots
}

func newWalker(logger *log.Logger, manifests *manifestReader, projectDirs []string) *walker {
	dirs := make(map[string]bool, len(projectDirs))
	for _, d := range projectDirs {
		dirs[realPath(d)] = true
	}
	return &walker{log: logger, manifests: manifests, projectDirs: dirs}
}

// resolve reads the module at moduleDir and recursively resolves its
// declared dependencies for the given scopes.
//
// ancestorDirs is the node_modules search path above moduleDir, innermost
// first. ancestorIDs carries the package ids on the current recursion
// path: when moduleDir's id is already among them the dependency is
// satisfied by an ancestor and recursion stops (nil return), which both
// breaks cycles and bounds recursion depth.
func (w *walker) resolve(moduleDir string, scopes []Scope, ancestorDirs []string, ancestorIDs map[PackageID]bool) (*ModuleInfo, error) {
	m, err := w.manifests.read(moduleDir, scopes)
	if err != nil {
		return nil, err
	}
	id := NewPackageID(m.Name, m.Version)

	if ancestorIDs[id] {
		w.log.Debug("dependency already on path, stopping", "id", id.Spec(), "dir", moduleDir)
		return nil, nil
	}

	searchPath := append([]string{moduleDir}, ancestorDirs...)
	pathIDs := cloneIDSet(ancestorIDs)
	pathIDs[id] = true

	node := &ModuleInfo{
		ID:           id,
		WorkingDir:   moduleDir,
		ManifestPath: m.Path,
		IsProject:    w.projectDirs[realPath(moduleDir)],
	}

	for _, depName := range m.DependencyNames {
		depDir, ok := findInstalled(depName, searchPath)
		if !ok {
			// Expected for platform-specific optional native packages.
			w.log.Debug("dependency not installed, skipping", "name", depName, "from", moduleDir)
			continue
		}
		// Below the direct level everything resolves at prod level:
		// installed peer and optional deps behave like prod deps.
		dep, err := w.resolve(depDir, transitiveScopes, searchPath, pathIDs)
		if err != nil {
			return nil, err
		}
		if dep != nil {
			node.Dependencies = append(node.Dependencies, dep)
		}
	}
	return node, nil
}

// findInstalled searches node_modules under each search-path entry in
// order; the first hit wins. This mirrors the nested-then-hoisted module
// resolution order of node itself.
func findInstalled(name string, searchPath []string) (string, bool) {
	for _, base := range searchPath {
		dir := filepath.Join(base, "node_modules", name)
		if info, err := os.Stat(filepath.Join(dir, "package.json")); err == nil && !info.IsDir() {
			return dir, true
		}
	}
	return "", false
}

func cloneIDSet(ids map[PackageID]bool) map[PackageID]bool {
	out := make(map[PackageID]bool, len(ids)+1)
	for id := range ids {
		out[id] = true
	}
	return out
}

// realPath resolves symlinks so workspace projects linked into
// node_modules compare equal to their true directories.
func realPath(dir string) string {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved
	}
	return dir
}
