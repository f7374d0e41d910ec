package npm

import (
	"errors"
	"fmt"
)

// ErrUnresolvedAlias is returned when a collapsed reference names an
// alias that no canonical ancestor occurrence declared a version for.
// Well-formed yarn output never does this; hitting it means the tool's
// truncation behavior changed and silent degradation would produce an
// incomplete graph.
var ErrUnresolvedAlias = errors.New("collapsed reference has no version mapping")

// ResolveVersions rewrites version-truncated references in place.
//
// Inside a collapsed subtree yarn omits versions: only the first, fully
// expanded occurrence of an alias carries "alias@version". The walk goes
// top-down carrying a map from alias to that occurrence's full raw name,
// accumulated from canonical siblings at each level; a childless node
// without a version is rewritten to the nearest enclosing entry's raw
// name. Rewriting to the raw name rather than "alias@version" keeps
// aliased references ("my-lodash@npm:lodash@4.17.21") matching their
// canonical occurrence when UndoDeduplication indexes by name.
func ResolveVersions(forest []*RawTreeNode) error {
	type frame struct {
		nodes []*RawTreeNode
		scope map[string]string
	}
	stack := []frame{{nodes: forest, scope: map[string]string{}}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Canonical siblings contribute their full names before any
		// reference at this level is resolved.
		level := make(map[string]string, len(f.scope)+len(f.nodes))
		for k, v := range f.scope {
			level[k] = v
		}
		for _, n := range f.nodes {
			if !n.Canonical {
				continue
			}
			ref := ParseModuleRef(n.Name)
			if ref.Version != "" {
				level[ref.Key()] = n.Name
			}
		}

		for _, n := range f.nodes {
			ref := ParseModuleRef(n.Name)
			if !n.Canonical && ref.Version == "" && !ref.IsLink() {
				name, ok := level[ref.Key()]
				if !ok {
					return fmt.Errorf("%w: %q", ErrUnresolvedAlias, n.Name)
				}
				n.Name = name
			}
			if len(n.Children) > 0 {
				stack = append(stack, frame{nodes: n.Children, scope: level})
			}
		}
	}
	return nil
}

// UndoDeduplication reconstructs collapsed subtrees into a fully
// expanded, cycle-free forest.
//
// yarn prints each package's dependency subtree once (the canonical
// occurrence) and collapses every other reference to it. Two scans undo
// this: the first indexes canonical occurrences by name (last wins; the
// tool guarantees canonical occurrences are structurally identical), the
// second rebuilds the forest, substituting canonical children into
// references, dropping references that were never canonical anywhere
// (install-layout artifacts), and cutting edges that would repeat an
// ancestor name on the current path.
//
// The output contains no collapsed references: running UndoDeduplication
// on its own output is a no-op.
func UndoDeduplication(forest []*RawTreeNode) []*RawTreeNode {
	canonical := make(map[string]*RawTreeNode)
	indexCanonical(forest, canonical)

	var out []*RawTreeNode
	for _, root := range forest {
		if n := expand(root, canonical); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// indexCanonical records every node carrying a children list, walking
// iteratively. Later occurrences overwrite earlier ones.
func indexCanonical(forest []*RawTreeNode, index map[string]*RawTreeNode) {
	stack := append([]*RawTreeNode(nil), forest...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Canonical {
			index[n.Name] = n
		}
		stack = append(stack, n.Children...)
	}
}

// outNode links expansion results to their parents so ancestor names can
// be checked without per-frame set copies.
type outNode struct {
	node   *RawTreeNode
	parent *outNode
}

func (o *outNode) onPath(name string) bool {
	for a := o; a != nil; a = a.parent {
		if a.node.Name == name {
			return true
		}
	}
	return false
}

// expand rebuilds the subtree rooted at src with every reference
// substituted by its canonical children. Returns nil when src is a cycle
// edge or a pure reference with no canonical occurrence.
func expand(src *RawTreeNode, canonical map[string]*RawTreeNode) *RawTreeNode {
	can, known := canonical[src.Name]
	if !src.Canonical && !known {
		return nil
	}

	root := &outNode{node: &RawTreeNode{Name: src.Name, Canonical: true, Children: []*RawTreeNode{}}}

	type frame struct {
		src *RawTreeNode
		dst *outNode
	}
	stack := []frame{{src: substitute(src, can), dst: root}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range f.src.Children {
			if f.dst.onPath(child.Name) {
				continue // dependency satisfied by an ancestor
			}
			childCan, childKnown := canonical[child.Name]
			if !child.Canonical && !childKnown {
				continue // install-layout artifact, not a dependency edge
			}
			dst := &outNode{
				node:   &RawTreeNode{Name: child.Name, Canonical: true, Children: []*RawTreeNode{}},
				parent: f.dst,
			}
			f.dst.node.Children = append(f.dst.node.Children, dst.node)
			stack = append(stack, frame{src: substitute(child, childCan), dst: dst})
		}
	}
	return root.node
}

// substitute returns the node whose children should be expanded: the node
// itself when it is canonical, otherwise the canonical occurrence of its
// name.
func substitute(n *RawTreeNode, canonical *RawTreeNode) *RawTreeNode {
	if n.Canonical || canonical == nil {
		return n
	}
	return canonical
}
