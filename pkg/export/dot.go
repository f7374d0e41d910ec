package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"

	"github.com/canopyscan/canopy/pkg/graph"
)

// ToDOT converts a resolved graph to Graphviz DOT format. Projects are
// drawn as boxes, packages as ellipses; edges follow the de-duplicated
// structure, so a shared dependency has one node with several parents.
func ToDOT(g *graph.Graph) string {
	var buf bytes.Buffer
	buf.WriteString("digraph dependencies {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  node [shape=ellipse, fontsize=11];\n")
	buf.WriteString("\n")

	for _, p := range g.Projects {
		fmt.Fprintf(&buf, "  %q [shape=box, style=filled, fillcolor=lightblue];\n", p.ID)
	}
	for _, pkg := range g.Packages {
		fmt.Fprintf(&buf, "  %q [label=%q];\n", pkg.Key, label(pkg))
	}

	buf.WriteString("\n")
	for _, p := range g.Projects {
		for scope, roots := range p.Scopes {
			for _, root := range roots {
				fmt.Fprintf(&buf, "  %q -> %q [label=%q, fontsize=9];\n", p.ID, root, scope)
			}
		}
	}
	for _, pkg := range g.Packages {
		for _, dep := range pkg.Dependencies {
			fmt.Fprintf(&buf, "  %q -> %q;\n", pkg.Key, dep)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func label(p graph.Package) string {
	name := p.Name
	if p.Namespace != "" {
		name = p.Namespace + "/" + name
	}
	if p.Version == "" {
		return name
	}
	return name + "\n" + p.Version
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	parsed, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer parsed.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, parsed, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
