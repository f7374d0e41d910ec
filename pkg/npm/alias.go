package npm

import "strings"

const (
	aliasMarker = "@npm:"
	linkMarker  = "@link:"
)

// ModuleReference is the parsed form of a raw tree-node name string.
//
// Three raw forms exist: "name@version" (plain),
// "alias@npm:name@version" (registry alias) and "name@link:relativePath"
// (workspace symlink). Anything else is treated as plain.
type ModuleReference struct {
	Alias      string // install name when it differs from the canonical one
	Name       string // canonical package name, scope included
	Version    string // empty for link references and truncated listings
	LinkTarget string // relative path for workspace symlinks
}

// IsLink reports whether the reference points at a workspace symlink.
func (r ModuleReference) IsLink() bool { return r.LinkTarget != "" }

// Key returns the name the reference is installed under, which is the
// alias when present. Version maps during reconciliation are keyed by it.
func (r ModuleReference) Key() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Name
}

// ID returns the package identifier for the canonical name and version.
func (r ModuleReference) ID() PackageID {
	return NewPackageID(r.Name, r.Version)
}

// ParseModuleRef parses a raw module reference string. Parsing is total:
// on any unexpected shape the entire string becomes the canonical name
// with an empty version.
//
// Scoped package names contain "@" themselves, so the name/version split
// must use the last "@", never the first.
func ParseModuleRef(raw string) ModuleReference {
	if i := strings.Index(raw, linkMarker); i >= 0 {
		return ModuleReference{
			Name:       raw[:i],
			LinkTarget: raw[i+len(linkMarker):],
		}
	}

	ref := ModuleReference{}
	rest := raw
	if i := strings.Index(raw, aliasMarker); i >= 0 {
		ref.Alias = raw[:i]
		rest = raw[i+len(aliasMarker):]
	}
	ref.Name, ref.Version = splitNameVersion(rest)
	return ref
}

// splitNameVersion splits "name@version" at the last "@". An "@" at
// position zero belongs to the scope, not to a version separator.
func splitNameVersion(s string) (name, version string) {
	i := strings.LastIndex(s, "@")
	if i <= 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}
