package npm

import (
	"context"
	"fmt"
	"path/filepath"
)

// resolveWithTool acquires one reconciled forest per scope from
// `yarn list --json` and partitions it into per-project scope roots.
// Returns the number of projects fully resolved and the first error.
func (rr *resolveRun) resolveWithTool(ctx context.Context, projects []WorkspaceProject) (int, error) {
	projectNames := make(map[string]bool, len(projects))
	for _, p := range projects {
		projectNames[p.Manifest.Name] = true
	}

	failed := make(map[string]bool)
	var firstErr error
	fail := func(p WorkspaceProject, err error) {
		rr.log.Error("project resolution failed", "project", p.RootDir, "err", err)
		failed[p.RootDir] = true
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, scope := range rr.assemblyScopes() {
		if rr.scopeExcluded(scope) {
			for _, p := range projects {
				if !failed[p.RootDir] {
					rr.builder.DeclareScope(projectID(p).String(), string(scope))
				}
			}
			continue
		}

		forest, err := rr.acquireToolForest(ctx, scope)
		if err != nil {
			// The listing is shared; its loss affects every project.
			if firstErr == nil {
				firstErr = err
			}
			for _, p := range projects {
				fail(p, err)
			}
			continue
		}

		for _, p := range projects {
			if failed[p.RootDir] {
				continue
			}
			declared, err := rr.declaredNames(p, scope)
			if err != nil {
				fail(p, err)
				continue
			}

			pid := projectID(p).String()
			rr.builder.DeclareScope(pid, string(scope))

			declaredSet := make(map[string]bool, len(declared))
			for _, name := range declared {
				declaredSet[name] = true
			}

			var rootKeys []string
			for _, candidate := range rr.projectSubtree(forest, p) {
				ref := ParseModuleRef(candidate.Name)
				if !declaredSet[ref.Key()] {
					continue
				}
				root := rr.toModuleInfo(candidate, projectNames)
				rr.addTree(root)
				rootKeys = append(rootKeys, root.Key())
			}
			rr.builder.AddDependencies(pid, string(scope), rootKeys)
		}
	}

	resolved := 0
	for _, p := range projects {
		if !failed[p.RootDir] {
			resolved++
		}
	}
	return resolved, firstErr
}

// acquireToolForest runs the tree listing for one scope and reconciles
// it: versions propagated down, deduplication undone, cycles broken.
func (rr *resolveRun) acquireToolForest(ctx context.Context, scope Scope) ([]*RawTreeNode, error) {
	args := []string{"list", "--json", "--no-progress"}
	if scope == ScopeProd {
		args = append(args, "--prod")
	}
	res, err := rr.run.Run(ctx, rr.rootDir, "yarn", args...)
	if err != nil {
		return nil, fmt.Errorf("yarn list (%s): %w", scope, err)
	}

	forest, err := ParseListOutput(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("yarn list (%s): %w", scope, err)
	}
	if err := ResolveVersions(forest); err != nil {
		return nil, fmt.Errorf("reconcile versions (%s): %w", scope, err)
	}
	return UndoDeduplication(forest), nil
}

// projectSubtree selects the candidate direct-dependency nodes for a
// project: the whole forest for the analysis root, or the children of
// the single node matching the project's manifest name for a
// sub-workspace project.
func (rr *resolveRun) projectSubtree(forest []*RawTreeNode, p WorkspaceProject) []*RawTreeNode {
	if realPath(p.RootDir) == realPath(rr.rootDir) {
		return forest
	}

	stack := append([]*RawTreeNode(nil), forest...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if ParseModuleRef(n.Name).Name == p.Manifest.Name {
			return n.Children
		}
		stack = append(stack, n.Children...)
	}
	rr.log.Debug("project not present in tree listing", "project", p.Manifest.Name)
	return nil
}

// toModuleInfo maps one reconciled subtree 1:1 into ModuleInfo. Names
// and versions are fully resolved at this point; only workspace links
// need a manifest lookup for their version.
func (rr *resolveRun) toModuleInfo(root *RawTreeNode, projectNames map[string]bool) *ModuleInfo {
	out := rr.newToolNode(root, projectNames)

	type frame struct {
		src *RawTreeNode
		dst *ModuleInfo
	}
	stack := []frame{{src: root, dst: out}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range f.src.Children {
			dst := rr.newToolNode(child, projectNames)
			f.dst.Dependencies = append(f.dst.Dependencies, dst)
			stack = append(stack, frame{src: child, dst: dst})
		}
	}
	return out
}

func (rr *resolveRun) newToolNode(n *RawTreeNode, projectNames map[string]bool) *ModuleInfo {
	ref := ParseModuleRef(n.Name)
	node := &ModuleInfo{
		WorkingDir: rr.rootDir,
		IsProject:  projectNames[ref.Name],
	}

	if ref.IsLink() {
		// A workspace symlink: the version lives in the linked manifest.
		node.IsProject = true
		dir := filepath.Join(rr.rootDir, filepath.FromSlash(ref.LinkTarget))
		if m, err := rr.manifests.read(dir, transitiveScopes); err == nil {
			node.ID = NewPackageID(ref.Name, m.Version)
			node.WorkingDir = dir
			node.ManifestPath = m.Path
		} else {
			rr.log.Debug("unreadable link target", "name", ref.Name, "target", ref.LinkTarget)
			node.ID = NewPackageID(ref.Name, "")
		}
		return node
	}

	node.ID = ref.ID()
	return node
}

// resolveWithWalk resolves every project by walking its installed
// node_modules tree. Each project is independent: a failure aborts that
// project only.
func (rr *resolveRun) resolveWithWalk(ctx context.Context, projects []WorkspaceProject) (int, error) {
	dirs := make([]string, len(projects))
	for i, p := range projects {
		dirs[i] = p.RootDir
	}
	w := newWalker(rr.log, rr.manifests, dirs)

	resolved := 0
	var firstErr error
	for _, p := range projects {
		if ctx.Err() != nil {
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}
		if err := rr.walkProject(w, p); err != nil {
			rr.log.Error("project resolution failed", "project", p.RootDir, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		resolved++
	}
	return resolved, firstErr
}

func (rr *resolveRun) walkProject(w *walker, p WorkspaceProject) error {
	pid := projectID(p).String()

	// Sub-workspace projects see the root's hoisted node_modules.
	var ancestors []string
	if realPath(p.RootDir) != realPath(rr.rootDir) {
		ancestors = []string{rr.rootDir}
	}

	for _, scope := range rr.assemblyScopes() {
		if rr.scopeExcluded(scope) {
			rr.builder.DeclareScope(pid, string(scope))
			continue
		}
		scopes := []Scope{scope}
		if scope == ScopeProd {
			scopes = []Scope{ScopeProd, ScopeOptional}
		}
		node, err := w.resolve(p.RootDir, scopes, ancestors, map[PackageID]bool{})
		if err != nil {
			return err
		}
		rr.builder.DeclareScope(pid, string(scope))
		if node == nil {
			continue
		}

		rootKeys := make([]string, 0, len(node.Dependencies))
		for _, dep := range node.Dependencies {
			rr.addTree(dep)
			rootKeys = append(rootKeys, dep.Key())
		}
		rr.builder.AddDependencies(pid, string(scope), rootKeys)
	}
	return nil
}
