package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-call-graph/pkg/callgraph"
	"github.com/l3aro/go-call-graph/pkg/program"
)

type fixture struct {
	graph                *callgraph.Graph
	run, start, stop     *program.Method
	overloadA, overloadB *program.Method
	lambda               *program.Lambda
}

// newFixture builds a small graph by hand:
//
//	Main.run -> Worker.start [direct]
//	Main.run -> Worker.stop  [non_unique_override]
//	Main.run -> Main.run$lambda$1 [type_evidenced]
//	Main.run -> Worker.log/1 (twice, two overloads)
func newFixture() *fixture {
	p := program.NewProgram()
	base := p.AddClass(&program.Class{Name: "app.Base", Kind: program.KindInterface})
	worker := p.AddClass((&program.Class{Name: "app.Worker", Pos: program.Position{File: "Worker.java", Line: 3}}).Extends(base))
	main := p.AddClass(&program.Class{Name: "app.Main"})

	f := &fixture{graph: callgraph.NewGraph()}
	f.run = main.AddMethod((&program.Method{Name: "run", Pos: program.Position{File: "Main.java", Line: 5}}).Append())
	f.start = worker.AddMethod((&program.Method{Name: "start"}).Append())
	f.stop = worker.AddMethod((&program.Method{Name: "stop"}).Append())
	f.overloadA = worker.AddMethod((&program.Method{Name: "log", Params: []*program.Variable{program.NewVariable("s", nil)}}).Append())
	f.overloadB = worker.AddMethod((&program.Method{Name: "log", Params: []*program.Variable{program.NewVariable("n", nil)}}).Append())
	f.lambda = program.NewLambda(f.run, 1, program.Position{File: "Main.java", Line: 7})

	site := &program.Call{Name: "start", Pos: program.Position{File: "Main.java", Line: 6}}
	f.graph.AddEdge(callgraph.Edge{Caller: f.run, Callee: f.start, Kind: callgraph.Direct, Site: site})
	f.graph.AddEdge(callgraph.Edge{Caller: f.run, Callee: f.stop, Kind: callgraph.NonUniqueOverride})
	f.graph.AddEdge(callgraph.Edge{Caller: f.run, Callee: f.lambda, Kind: callgraph.TypeEvidenced})
	f.graph.AddEdge(callgraph.Edge{Caller: f.run, Callee: f.overloadA, Kind: callgraph.Direct})
	f.graph.AddEdge(callgraph.Edge{Caller: f.run, Callee: f.overloadB, Kind: callgraph.Direct})
	return f
}

func TestFromGraph(t *testing.T) {
	f := newFixture()
	doc := FromGraph(f.graph, Options{RunID: "run-1"})

	assert.Equal(t, "run-1", doc.RunID)
	require.Len(t, doc.Nodes, 6)
	assert.Equal(t, Node{ID: 0, Key: "app.Main.run/0", Name: "app.Main.run", Kind: KindMethod, Class: "app.Main", File: "Main.java", Line: 5}, doc.Nodes[0])

	keys := make([]string, len(doc.Nodes))
	for i, n := range doc.Nodes {
		keys[i] = n.Key
	}
	assert.Equal(t, []string{
		"app.Main.run/0",
		"app.Worker.start/0",
		"app.Worker.stop/0",
		"app.Main.run$lambda$1",
		"app.Worker.log/1",
		"app.Worker.log/1#2",
	}, keys)
	assert.Equal(t, KindLambda, doc.Nodes[3].Kind)
	assert.Equal(t, "app.Main", doc.Nodes[3].Class)

	require.Len(t, doc.Edges, 5)
	assert.Equal(t, Edge{From: 0, To: 1, Kind: "direct", Likely: true, File: "Main.java", Line: 6}, doc.Edges[0])
	assert.False(t, doc.Edges[1].Likely)

	require.Len(t, doc.Classes, 2)
	assert.Equal(t, "app.Main", doc.Classes[0].Name)
	assert.Equal(t, []string{"app.Base"}, doc.Classes[1].Supers)
}

func TestFromGraphLikelyOnly(t *testing.T) {
	doc := FromGraph(newFixture().graph, Options{LikelyOnly: true})

	assert.Len(t, doc.Nodes, 6, "nodes are kept even when only reachable by unlikely edges")
	require.Len(t, doc.Edges, 4)
	for _, e := range doc.Edges {
		assert.True(t, e.Likely)
	}
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(strings.ToUpper(string(f)))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("yaml")
	assert.ErrorContains(t, err, "unknown format")
	assert.True(t, FormatMsgpack.Binary())
	assert.False(t, FormatDOT.Binary())
}

func TestWriteJSON(t *testing.T) {
	doc := FromGraph(newFixture().graph, Options{})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, doc))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded["nodes"], 6)
	edges := decoded["edges"].([]any)
	first := edges[0].(map[string]any)
	assert.Equal(t, "direct", first["kind"])
	assert.Equal(t, float64(6), first["line"])
	assert.NotContains(t, decoded, "run_id")
}

func TestMsgpackRoundTrip(t *testing.T) {
	doc := FromGraph(newFixture().graph, Options{RunID: "abc"})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatMsgpack, doc))
	got, err := ReadMsgpack(&buf)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = ReadMsgpack(bytes.NewReader([]byte{0xc1}))
	assert.ErrorContains(t, err, "decoding msgpack")
}

func TestWriteText(t *testing.T) {
	doc := FromGraph(newFixture().graph, Options{LikelyOnly: true})

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, doc))

	want := `app.Main.run/0
  -> app.Worker.start/0  [direct]  Main.java:6
  -> app.Main.run$lambda$1  [type_evidenced]
  -> app.Worker.log/1  [direct]
  -> app.Worker.log/1#2  [direct]
`
	assert.Equal(t, want, buf.String())
}

func TestWriteDOT(t *testing.T) {
	f := newFixture()
	f.graph.AddEdge(callgraph.Edge{Caller: f.start, Callee: &program.Method{Name: `quo"te`}, Kind: callgraph.Direct})
	doc := FromGraph(f.graph, Options{})

	var buf bytes.Buffer
	require.NoError(t, WriteDOT(&buf, doc))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "digraph callgraph {\n"))
	assert.True(t, strings.HasSuffix(out, "}\n"))
	assert.Contains(t, out, `n0 [label="app.Main.run/0"];`)
	assert.Contains(t, out, `n3 [label="app.Main.run$lambda$1", shape=ellipse];`)
	assert.Contains(t, out, `n0 -> n1 [label="direct", style=solid];`)
	assert.Contains(t, out, `n0 -> n2 [label="non_unique_override", style=dashed];`)
	assert.Contains(t, out, `[label="quo\"te/0"];`)
}
