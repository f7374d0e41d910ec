package export

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/canopyscan/canopy/pkg/graph"
)

func sampleGraph() *graph.Graph {
	b := graph.NewBuilder()
	b.AddPackage(graph.Package{
		Key: "NPM::lodash:4.17.21#abc", Type: "NPM", Name: "lodash", Version: "4.17.21",
		License: "MIT",
	})
	b.AddPackage(graph.Package{
		Key: "NPM::app-lib:1.0.0#def", Type: "NPM", Name: "app-lib", Version: "1.0.0",
		Dependencies: []string{"NPM::lodash:4.17.21#abc"},
	})
	b.DeclareScope("NPM::app:1.0.0", "dependencies")
	b.AddDependencies("NPM::app:1.0.0", "dependencies", []string{"NPM::app-lib:1.0.0#def"})
	return b.Build()
}

func TestJSONRoundTrip(t *testing.T) {
	g := sampleGraph()

	var buf bytes.Buffer
	if err := WriteJSON(g, &buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if !reflect.DeepEqual(g, got) {
		t.Errorf("round trip changed the graph:\nwrote %+v\nread  %+v", g, got)
	}
}

func TestWriteJSONStable(t *testing.T) {
	g := sampleGraph()

	var first, second bytes.Buffer
	if err := WriteJSON(g, &first); err != nil {
		t.Fatal(err)
	}
	if err := WriteJSON(g, &second); err != nil {
		t.Fatal(err)
	}
	if first.String() != second.String() {
		t.Error("repeated writes of the same graph differ")
	}
}

func TestReadJSONMalformed(t *testing.T) {
	if _, err := ReadJSON(strings.NewReader("{not json")); err == nil {
		t.Error("ReadJSON accepted malformed input")
	}
}

func TestToDOT(t *testing.T) {
	g := sampleGraph()
	dot := ToDOT(g)

	if !strings.HasPrefix(dot, "digraph") {
		t.Errorf("not a digraph: %q", dot[:20])
	}
	for _, want := range []string{
		`"NPM::app:1.0.0" [shape=box`,
		`"NPM::app:1.0.0" -> "NPM::app-lib:1.0.0#def" [label="dependencies"`,
		`"NPM::app-lib:1.0.0#def" -> "NPM::lodash:4.17.21#abc";`,
		"lodash\\n4.17.21",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}
