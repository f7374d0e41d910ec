package npm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/canopyscan/canopy/pkg/cache"
	"github.com/canopyscan/canopy/pkg/graph"
	"github.com/canopyscan/canopy/pkg/runner"
)

// Strategy selects how the raw module tree is acquired.
type Strategy string

const (
	// StrategyAuto picks StrategyTool when yarn.lock exists, otherwise
	// StrategyFilesystem.
	StrategyAuto Strategy = "auto"
	// StrategyFilesystem walks installed node_modules directories.
	StrategyFilesystem Strategy = "fs"
	// StrategyTool parses `yarn list --json` output.
	StrategyTool Strategy = "tool"
)

// Options configures one resolution run.
type Options struct {
	Strategy      Strategy
	ExcludeScopes []Scope       // scopes never queried nor recorded
	Workers       int           // bounded metadata fetch concurrency
	Refresh       bool          // bypass the persistent metadata cache
	Cache         cache.Cache   // persistent metadata cache; nil disables
	CacheTTL      time.Duration // metadata entry lifetime
	FetchInfo     bool          // fill missing metadata via yarn info
	OnlyProjects  []string      // restrict to these project names (root always kept)
	Logger        *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Strategy == "" {
		o.Strategy = StrategyAuto
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// Resolver resolves dependency graphs for workspace projects. A Resolver
// is cheap and stateless between runs: every Resolve call owns its
// manifest memo and tree state exclusively, so concurrent runs over
// different projects do not interfere.
type Resolver struct {
	run  runner.Runner
	opts Options
}

// NewResolver creates a Resolver issuing package manager commands
// through run.
func NewResolver(run runner.Runner, opts Options) *Resolver {
	return &Resolver{run: run, opts: opts.withDefaults()}
}

// resolveRun bundles the state owned by a single Resolve call.
type resolveRun struct {
	run       runner.Runner
	log       *log.Logger
	opts      Options
	rootDir   string
	manifests *manifestReader
	info      *InfoResolver
	builder   *graph.Builder

	// ids of packages added to the builder that still lack metadata,
	// keyed by identity key
	pendingInfo map[string]PackageID
}

// Resolve discovers the workspace projects under rootDir, acquires and
// reconciles their dependency trees, and returns the shared graph.
//
// Acquisition errors abort resolution for the affected project only;
// metadata-fetch failures never abort anything. The error return is
// non-nil when no project could be resolved at all.
func (r *Resolver) Resolve(ctx context.Context, rootDir string) (*graph.Graph, error) {
	rootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}

	logger := r.opts.Logger.With("run", uuid.NewString()[:8])
	rr := &resolveRun{
		run:       r.run,
		log:       logger,
		opts:      r.opts,
		rootDir:   rootDir,
		manifests: newManifestReader(logger),
		builder:   graph.NewBuilder(),

		pendingInfo: make(map[string]PackageID),
	}
	rr.info = NewInfoResolver(r.run, logger, InfoOptions{
		Cache:   r.opts.Cache,
		TTL:     r.opts.CacheTTL,
		Workers: r.opts.Workers,
		WorkDir: rootDir,
		Refresh: r.opts.Refresh,
	})

	projects, err := discoverWorkspaces(ctx, rr.run, rr.log, rr.manifests, rootDir)
	if err != nil {
		return nil, fmt.Errorf("discover workspaces: %w", err)
	}
	projects = rr.filterProjects(projects)
	rr.log.Info("discovered workspace projects", "count", len(projects))

	strategy := rr.pickStrategy()
	rr.log.Debug("acquisition strategy", "strategy", strategy)

	var resolved int
	var firstErr error
	switch strategy {
	case StrategyTool:
		resolved, firstErr = rr.resolveWithTool(ctx, projects)
	default:
		resolved, firstErr = rr.resolveWithWalk(ctx, projects)
	}
	if resolved == 0 && firstErr != nil {
		return nil, firstErr
	}

	if rr.opts.FetchInfo {
		rr.attachRemoteInfo(ctx)
	}
	return rr.builder.Build(), nil
}

// filterProjects applies OnlyProjects. The analysis root survives any
// filter; sub-workspace projects are matched by manifest name.
func (rr *resolveRun) filterProjects(projects []WorkspaceProject) []WorkspaceProject {
	if len(rr.opts.OnlyProjects) == 0 {
		return projects
	}
	keep := make(map[string]bool, len(rr.opts.OnlyProjects))
	for _, name := range rr.opts.OnlyProjects {
		keep[name] = true
	}
	var out []WorkspaceProject
	for _, p := range projects {
		if realPath(p.RootDir) == realPath(rr.rootDir) || keep[p.Manifest.Name] {
			out = append(out, p)
		}
	}
	return out
}

func (rr *resolveRun) pickStrategy() Strategy {
	if rr.opts.Strategy != StrategyAuto {
		return rr.opts.Strategy
	}
	if _, err := os.Stat(filepath.Join(rr.rootDir, "yarn.lock")); err == nil {
		return StrategyTool
	}
	return StrategyFilesystem
}

// assemblyScopes returns the scopes recorded on projects. Optional
// dependencies resolve under prod, so only prod and dev produce scope
// entries. Excluded scopes still appear on every project as empty
// entries; acquisition skips them.
func (rr *resolveRun) assemblyScopes() []Scope {
	return []Scope{ScopeProd, ScopeDev}
}

func (rr *resolveRun) scopeExcluded(s Scope) bool {
	for _, e := range rr.opts.ExcludeScopes {
		if e == s {
			return true
		}
	}
	return false
}

// declaredNames returns the dependency names the project manifest
// declares for the scope, optional merged into prod.
func (rr *resolveRun) declaredNames(p WorkspaceProject, s Scope) ([]string, error) {
	scopes := []Scope{s}
	if s == ScopeProd {
		scopes = []Scope{ScopeProd, ScopeOptional}
	}
	m, err := rr.manifests.read(p.RootDir, scopes)
	if err != nil {
		return nil, err
	}
	return m.DependencyNames, nil
}

func projectID(p WorkspaceProject) PackageID {
	name := p.Manifest.Name
	if name == "" {
		name = filepath.Base(p.RootDir)
	}
	return NewPackageID(name, p.Manifest.Version)
}

// addTree records every node of a resolved dependency tree in the
// builder and queues non-project ids for metadata lookup.
func (rr *resolveRun) addTree(root *ModuleInfo) {
	for _, n := range root.Flatten() {
		deps := make([]string, len(n.Dependencies))
		for i, d := range n.Dependencies {
			deps[i] = d.Key()
		}
		rr.builder.AddPackage(graph.Package{
			Key:          n.Key(),
			Type:         n.ID.Type,
			Namespace:    n.ID.Namespace,
			Name:         n.ID.Name,
			Version:      n.ID.Version,
			Dependencies: deps,
			IsProject:    n.IsProject,
		})
		if !n.IsProject {
			rr.pendingInfo[n.Key()] = n.ID
		}
	}
}

// attachRemoteInfo fills metadata the local tree could not provide.
// Failures degrade the result and are never fatal.
func (rr *resolveRun) attachRemoteInfo(ctx context.Context) {
	ids := make([]PackageID, 0, len(rr.pendingInfo))
	for _, id := range rr.pendingInfo {
		ids = append(ids, id)
	}
	infos, err := rr.info.GetAll(ctx, ids)
	if err != nil {
		rr.log.Warn("metadata fetch incomplete", "err", err)
	}

	bySpec := make(map[string]*PackageInfo, len(infos))
	for _, info := range infos {
		bySpec[info.Name+"@"+info.Version] = info
	}
	for key, id := range rr.pendingInfo {
		info, ok := bySpec[id.Spec()]
		if !ok {
			continue
		}
		rr.builder.AddPackage(graph.Package{
			Key:         key,
			Type:        id.Type,
			Namespace:   id.Namespace,
			Name:        id.Name,
			Version:     id.Version,
			Description: info.Description,
			License:     info.License,
			Homepage:    info.Homepage,
			Repository:  info.Repository,
		})
	}
	rr.log.Info("attached registry metadata", "packages", len(infos))
}
