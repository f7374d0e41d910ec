package npm

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
)

// writeManifest creates dir/package.json with the given content.
func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func testWalker(projectDirs ...string) *walker {
	logger := log.New(io.Discard)
	return newWalker(logger, newManifestReader(logger), projectDirs)
}

func depNames(m *ModuleInfo) []string {
	names := make([]string, len(m.Dependencies))
	for i, d := range m.Dependencies {
		names[i] = d.ID.Name
	}
	return names
}

func TestWalkerResolvesHoistedInstall(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"name":"app","version":"1.0.0","dependencies":{"a":"^1.0.0"}}`)
	writeManifest(t, filepath.Join(root, "node_modules", "a"),
		`{"name":"a","version":"1.0.0","dependencies":{"b":"^1.0.0"}}`)
	writeManifest(t, filepath.Join(root, "node_modules", "b"),
		`{"name":"b","version":"1.0.0"}`)

	w := testWalker(root)
	node, err := w.resolve(root, []Scope{ScopeProd}, nil, map[PackageID]bool{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if node == nil {
		t.Fatal("resolve returned nil for project root")
	}
	if got := depNames(node); len(got) != 1 || got[0] != "a" {
		t.Fatalf("root deps = %v, want [a]", got)
	}
	a := node.Dependencies[0]
	if got := depNames(a); len(got) != 1 || got[0] != "b" {
		t.Errorf("a deps = %v, want hoisted [b]", got)
	}
}

func TestWalkerNestedBeatsHoisted(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"name":"app","version":"1.0.0","dependencies":{"a":"^1.0.0","b":"^1.0.0"}}`)
	writeManifest(t, filepath.Join(root, "node_modules", "a"),
		`{"name":"a","version":"1.0.0","dependencies":{"b":"^2.0.0"}}`)
	writeManifest(t, filepath.Join(root, "node_modules", "a", "node_modules", "b"),
		`{"name":"b","version":"2.0.0"}`)
	writeManifest(t, filepath.Join(root, "node_modules", "b"),
		`{"name":"b","version":"1.0.0"}`)

	w := testWalker(root)
	node, err := w.resolve(root, []Scope{ScopeProd}, nil, map[PackageID]bool{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var a *ModuleInfo
	for _, d := range node.Dependencies {
		if d.ID.Name == "a" {
			a = d
		}
	}
	if a == nil {
		t.Fatal("a missing from root deps")
	}
	if len(a.Dependencies) != 1 || a.Dependencies[0].ID.Version != "2.0.0" {
		t.Errorf("a resolved b to %+v, want the nested 2.0.0", a.Dependencies)
	}
}

func TestWalkerTerminatesOnCycle(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"name":"app","version":"1.0.0","dependencies":{"a":"^1.0.0"}}`)
	writeManifest(t, filepath.Join(root, "node_modules", "a"),
		`{"name":"a","version":"1.0.0","dependencies":{"b":"^1.0.0"}}`)
	writeManifest(t, filepath.Join(root, "node_modules", "b"),
		`{"name":"b","version":"1.0.0","dependencies":{"a":"^1.0.0"}}`)

	w := testWalker(root)
	node, err := w.resolve(root, []Scope{ScopeProd}, nil, map[PackageID]bool{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	a := node.Dependencies[0]
	if a.ID.Name != "a" {
		t.Fatalf("root dep = %s", a.ID.Name)
	}
	b := a.Dependencies[0]
	if b.ID.Name != "b" {
		t.Fatalf("a dep = %s", b.ID.Name)
	}
	// The back edge to a is satisfied by the ancestor and omitted.
	if len(b.Dependencies) != 0 {
		t.Errorf("b deps = %v, want none", depNames(b))
	}
}

func TestWalkerSkipsUninstalledDependency(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"name":"app","version":"1.0.0","dependencies":{"present":"^1.0.0","absent":"^1.0.0"}}`)
	writeManifest(t, filepath.Join(root, "node_modules", "present"),
		`{"name":"present","version":"1.0.0"}`)

	w := testWalker(root)
	node, err := w.resolve(root, []Scope{ScopeProd}, nil, map[PackageID]bool{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := depNames(node); len(got) != 1 || got[0] != "present" {
		t.Errorf("root deps = %v, want [present]", got)
	}
}

func TestWalkerScopedPackages(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"name":"app","version":"1.0.0","dependencies":{"@acme/core":"^1.0.0"}}`)
	writeManifest(t, filepath.Join(root, "node_modules", "@acme", "core"),
		`{"name":"@acme/core","version":"1.0.0"}`)

	w := testWalker(root)
	node, err := w.resolve(root, []Scope{ScopeProd}, nil, map[PackageID]bool{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(node.Dependencies) != 1 {
		t.Fatalf("root deps = %v", depNames(node))
	}
	id := node.Dependencies[0].ID
	if id.Namespace != "@acme" || id.Name != "core" {
		t.Errorf("scoped id = %+v", id)
	}
}

func TestWalkerMarksProjects(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "packages", "lib")
	writeManifest(t, root, `{"name":"app","version":"1.0.0","dependencies":{"lib":"^1.0.0"}}`)
	writeManifest(t, sub, `{"name":"lib","version":"1.0.0"}`)
	// Workspace installs symlink the project into node_modules.
	if err := os.MkdirAll(filepath.Join(root, "node_modules"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(sub, filepath.Join(root, "node_modules", "lib")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	w := testWalker(root, sub)
	node, err := w.resolve(root, []Scope{ScopeProd}, nil, map[PackageID]bool{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(node.Dependencies) != 1 {
		t.Fatalf("root deps = %v", depNames(node))
	}
	if !node.Dependencies[0].IsProject {
		t.Error("linked workspace project not marked IsProject")
	}
	if !node.IsProject {
		t.Error("root project not marked IsProject")
	}
}

func TestManifestReaderFiltersCommentKeys(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name":"app","version":"1.0.0","dependencies":{"//":"comment, not a package","real":"^1.0.0"}}`)

	r := newManifestReader(log.New(io.Discard))
	m, err := r.read(dir, []Scope{ScopeProd})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(m.DependencyNames) != 1 || m.DependencyNames[0] != "real" {
		t.Errorf("DependencyNames = %v, want [real]", m.DependencyNames)
	}
}

func TestManifestReaderMergesScopes(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name":"app","version":"1.0.0",
		"dependencies":{"a":"^1"},
		"devDependencies":{"b":"^1"},
		"optionalDependencies":{"c":"^1","a":"^1"}}`)

	r := newManifestReader(log.New(io.Discard))
	m, err := r.read(dir, []Scope{ScopeProd, ScopeOptional})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []string{"a", "c"}
	if len(m.DependencyNames) != len(want) {
		t.Fatalf("DependencyNames = %v, want %v", m.DependencyNames, want)
	}
	for i, n := range want {
		if m.DependencyNames[i] != n {
			t.Errorf("DependencyNames = %v, want %v", m.DependencyNames, want)
		}
	}
}
