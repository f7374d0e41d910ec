package npm

import (
	"bufio"
	"context"
	"encoding/json"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gobwas/glob"

	"github.com/canopyscan/canopy/pkg/runner"
)

// WorkspaceProject is one package root managed under the top-level
// manifest. The project set always contains the analysis root itself.
type WorkspaceProject struct {
	RootDir  string
	Manifest *Manifest
}

// DiscoverProjects enumerates the workspace projects under rootDir
// without resolving anything. The root project is always first.
func DiscoverProjects(ctx context.Context, run runner.Runner, logger *log.Logger, rootDir string) ([]WorkspaceProject, error) {
	if logger == nil {
		logger = log.Default()
	}
	return discoverWorkspaces(ctx, run, logger, newManifestReader(logger), rootDir)
}

// discoverWorkspaces enumerates workspace project roots for rootDir.
//
// `yarn workspaces info` is authoritative; its failure is the defined
// "no workspaces" signal, not an error. When the tool reports nothing
// but the root manifest declares workspace glob patterns (npm-style
// installs without yarn), the patterns are expanded locally instead.
func discoverWorkspaces(ctx context.Context, run runner.Runner, logger *log.Logger, manifests *manifestReader, rootDir string) ([]WorkspaceProject, error) {
	rootManifest, err := manifests.read(rootDir, AllScopes)
	if err != nil {
		return nil, err
	}
	projects := []WorkspaceProject{{RootDir: rootDir, Manifest: rootManifest}}
	seen := map[string]bool{realPath(rootDir): true}

	dirs := workspaceDirsFromTool(ctx, run, logger, rootDir)
	if len(dirs) == 0 {
		dirs = workspaceDirsFromGlobs(logger, rootDir)
	}

	for _, dir := range dirs {
		if seen[realPath(dir)] {
			continue
		}
		seen[realPath(dir)] = true
		m, err := manifests.read(dir, AllScopes)
		if err != nil {
			return nil, err
		}
		projects = append(projects, WorkspaceProject{RootDir: dir, Manifest: m})
	}
	return projects, nil
}

// workspacesInfoEntry is one value of the map `yarn workspaces info`
// prints as a JSON string inside a log-typed NDJSON object.
type workspacesInfoEntry struct {
	Location string `json:"location"`
}

func workspaceDirsFromTool(ctx context.Context, run runner.Runner, logger *log.Logger, rootDir string) []string {
	res, err := run.Run(ctx, rootDir, "yarn", "workspaces", "info", "--json")
	if err != nil {
		// Expected when the project declares no workspaces.
		logger.Debug("workspaces info not available", "err", err)
		return nil
	}

	payload := extractLogPayload(res.Stdout)
	if payload == "" {
		return nil
	}
	var entries map[string]workspacesInfoEntry
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		logger.Debug("unparsable workspaces info", "err", err)
		return nil
	}

	var dirs []string
	for _, e := range entries {
		dirs = append(dirs, filepath.Join(rootDir, e.Location))
	}
	sort.Strings(dirs)
	return dirs
}

// extractLogPayload finds the data payload of the first log-typed NDJSON
// object. Older yarn versions print the map bare; that shape is returned
// as-is.
func extractLogPayload(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return ""
	}
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 1024), 16<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var l struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &l); err != nil {
			return trimmed
		}
		if l.Type == "log" {
			return l.Data
		}
	}
	return ""
}

// workspaceDirsFromGlobs expands the root manifest's workspaces patterns
// against the directory tree. Only directories containing a package.json
// count; node_modules is never descended into.
func workspaceDirsFromGlobs(logger *log.Logger, rootDir string) []string {
	raw, err := parseManifestFile(filepath.Join(rootDir, "package.json"))
	if err != nil || len(raw.Workspaces) == 0 {
		return nil
	}

	globs := make([]glob.Glob, 0, len(raw.Workspaces))
	for _, pattern := range raw.Workspaces {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			logger.Warn("invalid workspace pattern", "pattern", pattern, "err", err)
			continue
		}
		globs = append(globs, g)
	}
	if len(globs) == 0 {
		return nil
	}

	var dirs []string
	_ = filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if d.Name() == "node_modules" {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, g := range globs {
			if g.Match(rel) {
				if _, err := parseManifestFile(filepath.Join(path, "package.json")); err == nil {
					dirs = append(dirs, path)
				}
				break
			}
		}
		return nil
	})
	sort.Strings(dirs)
	return dirs
}
