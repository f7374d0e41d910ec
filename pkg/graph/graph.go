// Package graph holds the shared, whole-run dependency graph store.
//
// A Builder receives direct-dependency roots per (project, scope) from
// the resolution engine and de-duplicates nodes by identity key across
// every project in the run: one logical package appears once no matter
// how many projects or scopes reference it, and independent of call
// order.
package graph

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Package is one de-duplicated node of the graph. Key is the identity
// key (package id plus recursive dependency structure); Dependencies
// lists the keys of direct dependencies.
type Package struct {
	Key          string   `json:"key"`
	Type         string   `json:"type"`
	Namespace    string   `json:"namespace,omitempty"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies,omitempty"`
	IsProject    bool     `json:"is_project,omitempty"`

	// Registry metadata, filled opportunistically; empty when the
	// remote lookup had nothing.
	Description string `json:"description,omitempty"`
	License     string `json:"license,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
	Repository  string `json:"repository,omitempty"`
}

// Project records the declared scopes of one workspace project and the
// direct-dependency keys per scope. A declared scope with no
// dependencies is present with an empty list; scopes excluded from the
// run are absent entirely.
type Project struct {
	ID     string              `json:"id"`
	Scopes map[string][]string `json:"scopes"`
}

// Graph is the finalized result of one resolution run.
type Graph struct {
	Projects []Project `json:"projects"`
	Packages []Package `json:"packages"`
}

// Builder accumulates packages and per-project scope roots. The zero
// value is not usable; use NewBuilder. Builder is not safe for
// concurrent use: the engine feeds it from a single goroutine.
type Builder struct {
	packages map[string]Package
	projects map[string]*Project
	order    []string // project insertion order
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		packages: make(map[string]Package),
		projects: make(map[string]*Project),
	}
}

// AddPackage records a node. Nodes with the same identity key collapse
// to one; the first occurrence wins except that registry metadata from a
// later occurrence fills fields the stored one lacks.
func (b *Builder) AddPackage(p Package) {
	stored, ok := b.packages[p.Key]
	if !ok {
		b.packages[p.Key] = p
		return
	}
	if stored.Description == "" {
		stored.Description = p.Description
	}
	if stored.License == "" {
		stored.License = p.License
	}
	if stored.Homepage == "" {
		stored.Homepage = p.Homepage
	}
	if stored.Repository == "" {
		stored.Repository = p.Repository
	}
	stored.IsProject = stored.IsProject || p.IsProject
	b.packages[p.Key] = stored
}

// DeclareScope records that a project declares the scope, even when no
// dependency resolves under it.
func (b *Builder) DeclareScope(projectID, scope string) {
	p := b.project(projectID)
	if _, ok := p.Scopes[scope]; !ok {
		p.Scopes[scope] = []string{}
	}
}

// AddDependencies records the direct-dependency root keys for one
// (project, scope) pair. Repeated calls accumulate.
func (b *Builder) AddDependencies(projectID, scope string, rootKeys []string) {
	p := b.project(projectID)
	existing := p.Scopes[scope]
	seen := make(map[string]bool, len(existing))
	for _, k := range existing {
		seen[k] = true
	}
	for _, k := range rootKeys {
		if !seen[k] {
			seen[k] = true
			existing = append(existing, k)
		}
	}
	p.Scopes[scope] = existing
}

func (b *Builder) project(id string) *Project {
	if p, ok := b.projects[id]; ok {
		return p
	}
	p := &Project{ID: id, Scopes: make(map[string][]string)}
	b.projects[id] = p
	b.order = append(b.order, id)
	return p
}

// Packages returns the de-duplicated package set in sorted order.
func (b *Builder) Packages() []Package {
	pkgs := make([]Package, 0, len(b.packages))
	for _, p := range b.packages {
		pkgs = append(pkgs, p)
	}
	sortPackages(pkgs)
	return pkgs
}

// Build finalizes the graph. Projects keep insertion order; packages are
// sorted by name, then version.
func (b *Builder) Build() *Graph {
	g := &Graph{Packages: b.Packages()}
	for _, id := range b.order {
		p := b.projects[id]
		scopes := make(map[string][]string, len(p.Scopes))
		for s, keys := range p.Scopes {
			sorted := append([]string(nil), keys...)
			sort.Strings(sorted)
			scopes[s] = sorted
		}
		g.Projects = append(g.Projects, Project{ID: p.ID, Scopes: scopes})
	}
	return g
}

// sortPackages orders by namespace, name, then version. Versions compare
// semver-aware so 1.10.0 sorts after 1.9.0; unparsable versions fall
// back to string order.
func sortPackages(pkgs []Package) {
	sort.Slice(pkgs, func(i, j int) bool {
		a, b := pkgs[i], pkgs[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Version != b.Version {
			va, errA := semver.NewVersion(a.Version)
			vb, errB := semver.NewVersion(b.Version)
			if errA == nil && errB == nil {
				return va.LessThan(vb)
			}
			return a.Version < b.Version
		}
		return a.Key < b.Key
	})
}

// Lookup returns the package stored under key.
func (g *Graph) Lookup(key string) (Package, bool) {
	for _, p := range g.Packages {
		if p.Key == key {
			return p, true
		}
	}
	return Package{}, false
}
