// Package export writes resolved dependency graphs to the formats the
// downstream compliance tooling consumes: JSON for pipelines, DOT/SVG
// for inspection, and MongoDB for shared result stores.
package export

import (
	"encoding/json"
	"io"

	"github.com/canopyscan/canopy/pkg/graph"
)

// WriteJSON encodes the graph as indented JSON.
// The output is stable: projects keep run order and packages are sorted,
// so repeated runs over an unchanged install diff clean.
func WriteJSON(g *graph.Graph, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}

// ReadJSON decodes a graph previously written with [WriteJSON].
func ReadJSON(r io.Reader) (*graph.Graph, error) {
	var g graph.Graph
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, err
	}
	return &g, nil
}
