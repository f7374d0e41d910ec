package npm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// RawTreeNode is one node of the tree `yarn list --json` prints.
//
// A nil Children slice marks either a true leaf or a collapsed reference
// to a subtree printed fully elsewhere in the same listing; the two are
// indistinguishable without reconciliation. Canonical records whether the
// node was printed with a children list (possibly empty), i.e. whether
// this occurrence is the fully expanded one.
type RawTreeNode struct {
	Name      string
	Children  []*RawTreeNode
	Canonical bool
}

// yarn list --json emits newline-delimited JSON objects; the tree payload
// is the single object typed "tree".
type listLine struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type listTree struct {
	Trees []listTreeNode `json:"trees"`
}

type listTreeNode struct {
	Name     string          `json:"name"`
	Children []listTreeNode  `json:"children"`
	raw      json.RawMessage // retains null vs [] distinction
}

func (n *listTreeNode) UnmarshalJSON(data []byte) error {
	var aux struct {
		Name     string          `json:"name"`
		Children json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.Name = aux.Name
	n.raw = aux.Children
	if len(aux.Children) > 0 && string(aux.Children) != "null" {
		if err := json.Unmarshal(aux.Children, &n.Children); err != nil {
			return err
		}
	}
	return nil
}

func (n *listTreeNode) hasChildrenList() bool {
	return len(n.raw) > 0 && string(n.raw) != "null"
}

// ParseListOutput parses the NDJSON output of `yarn list --json` into a
// raw forest. Non-tree lines (progress, warnings) are skipped; a listing
// without any tree line is an error since it means the tool contract
// changed underneath us.
func ParseListOutput(output string) ([]*RawTreeNode, error) {
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 1024), 64<<20)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var l listLine
		if err := json.Unmarshal([]byte(line), &l); err != nil {
			// yarn interleaves plain-text noise on some platforms
			continue
		}
		if l.Type != "tree" {
			continue
		}
		var tree listTree
		if err := json.Unmarshal(l.Data, &tree); err != nil {
			return nil, fmt.Errorf("parse tree listing: %w", err)
		}
		return convertForest(tree.Trees), nil
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan tree listing: %w", err)
	}
	return nil, fmt.Errorf("tree listing contains no tree object")
}

// convertForest maps the wire nodes into RawTreeNodes, marking canonical
// occurrences. The conversion is iterative; listings of large installs
// nest deeply enough that native recursion is a liability.
func convertForest(nodes []listTreeNode) []*RawTreeNode {
	roots := make([]*RawTreeNode, len(nodes))

	type frame struct {
		src *listTreeNode
		dst *RawTreeNode
	}
	var stack []frame
	for i := range nodes {
		roots[i] = &RawTreeNode{Name: nodes[i].Name, Canonical: nodes[i].hasChildrenList()}
		stack = append(stack, frame{src: &nodes[i], dst: roots[i]})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !f.src.hasChildrenList() {
			continue
		}
		f.dst.Children = make([]*RawTreeNode, len(f.src.Children))
		for i := range f.src.Children {
			child := &f.src.Children[i]
			f.dst.Children[i] = &RawTreeNode{Name: child.Name, Canonical: child.hasChildrenList()}
			stack = append(stack, frame{src: child, dst: f.dst.Children[i]})
		}
	}
	return roots
}
