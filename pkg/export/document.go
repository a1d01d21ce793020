// Package export renders a call graph for consumers outside the analysis:
// text, JSON, msgpack and Graphviz DOT documents, and a Neo4j loader.
package export

import (
	"fmt"
	"sort"

	"github.com/l3aro/go-call-graph/pkg/callgraph"
	"github.com/l3aro/go-call-graph/pkg/program"
)

// Node kinds.
const (
	KindMethod      = "method"
	KindConstructor = "constructor"
	KindLambda      = "lambda"
)

// Document is the host-neutral form of a call graph.
type Document struct {
	RunID   string  `json:"run_id,omitempty" msgpack:"run_id,omitempty"`
	Classes []Class `json:"classes" msgpack:"classes"`
	Nodes   []Node  `json:"nodes" msgpack:"nodes"`
	Edges   []Edge  `json:"edges" msgpack:"edges"`
}

// Class is a class that declares at least one node of the document.
type Class struct {
	Name string `json:"name" msgpack:"name"`
	Kind string `json:"kind" msgpack:"kind"`
	// Supers are the resolved direct supertypes.
	Supers []string `json:"supers,omitempty" msgpack:"supers,omitempty"`
	File   string   `json:"file,omitempty" msgpack:"file,omitempty"`
	Line   int      `json:"line,omitempty" msgpack:"line,omitempty"`
}

// Node is a callable. Key is unique within a document.
type Node struct {
	ID    int    `json:"id" msgpack:"id"`
	Key   string `json:"key" msgpack:"key"`
	Name  string `json:"name" msgpack:"name"`
	Kind  string `json:"kind" msgpack:"kind"`
	Class string `json:"class,omitempty" msgpack:"class,omitempty"`
	File  string `json:"file,omitempty" msgpack:"file,omitempty"`
	Line  int    `json:"line,omitempty" msgpack:"line,omitempty"`
}

// Edge is a classified call between two node ids.
type Edge struct {
	From   int    `json:"from" msgpack:"from"`
	To     int    `json:"to" msgpack:"to"`
	Kind   string `json:"kind" msgpack:"kind"`
	Likely bool   `json:"likely" msgpack:"likely"`
	File   string `json:"file,omitempty" msgpack:"file,omitempty"`
	Line   int    `json:"line,omitempty" msgpack:"line,omitempty"`
}

// Options controls which parts of a graph are exported.
type Options struct {
	// LikelyOnly drops NonUniqueOverride edges.
	LikelyOnly bool
	RunID      string
}

// FromGraph converts g. Nodes keep the graph's creation order, so the
// document is deterministic for a deterministic build.
func FromGraph(g *callgraph.Graph, opts Options) *Document {
	doc := &Document{RunID: opts.RunID}
	ids := make(map[program.Callable]int)
	keys := make(map[string]int)
	classes := make(map[*program.Class]bool)

	for _, n := range g.Nodes() {
		c := n.Callable
		id := len(doc.Nodes)
		ids[c] = id

		key := nodeKey(c)
		if seen := keys[key]; seen > 0 {
			keys[key] = seen + 1
			key = fmt.Sprintf("%s#%d", key, seen+1)
		} else {
			keys[key] = 1
		}

		node := Node{
			ID:   id,
			Key:  key,
			Name: c.QualifiedName(),
			Kind: nodeKind(c),
			File: c.Position().File,
			Line: c.Position().Line,
		}
		if class := c.DeclaringClass(); class != nil {
			node.Class = class.Name
			classes[class] = true
		}
		doc.Nodes = append(doc.Nodes, node)
	}

	for _, n := range g.Nodes() {
		edges := n.Edges()
		if opts.LikelyOnly {
			edges = n.LikelyEdges()
		}
		for _, e := range edges {
			edge := Edge{
				From:   ids[e.Caller],
				To:     ids[e.Callee],
				Kind:   e.Kind.String(),
				Likely: e.Kind.IsLikely(),
			}
			if e.Site != nil {
				edge.File = e.Site.Pos.File
				edge.Line = e.Site.Pos.Line
			}
			doc.Edges = append(doc.Edges, edge)
		}
	}

	for class := range classes {
		c := Class{
			Name: class.Name,
			Kind: class.Kind.String(),
			File: class.Pos.File,
			Line: class.Pos.Line,
		}
		for _, s := range class.Supertypes {
			c.Supers = append(c.Supers, s.Name)
		}
		doc.Classes = append(doc.Classes, c)
	}
	sort.Slice(doc.Classes, func(i, j int) bool {
		return doc.Classes[i].Name < doc.Classes[j].Name
	})
	return doc
}

func nodeKey(c program.Callable) string {
	if m, ok := c.(*program.Method); ok {
		return m.String()
	}
	return c.QualifiedName()
}

func nodeKind(c program.Callable) string {
	switch c := c.(type) {
	case *program.Method:
		if c.IsConstructor {
			return KindConstructor
		}
		return KindMethod
	default:
		return KindLambda
	}
}

// Node returns the node with the given id.
func (d *Document) Node(id int) (Node, bool) {
	if id < 0 || id >= len(d.Nodes) {
		return Node{}, false
	}
	return d.Nodes[id], true
}

// Outgoing returns the edges leaving id in document order.
func (d *Document) Outgoing(id int) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}
