// Package callgraph builds a whole-program call graph whose edges are
// classified by how certain the dispatch to the callee is.
package callgraph

import (
	"sync"

	"github.com/l3aro/go-call-graph/pkg/program"
)

// EdgeKind classifies a call edge by dispatch certainty.
type EdgeKind int

const (
	// Direct is a statically dispatched call with a single target.
	Direct EdgeKind = iota
	// UniqueOverride is a virtual call with exactly one reachable implementation.
	UniqueOverride
	// TypeEvidenced is one of several implementations, kept because the
	// receiver's estimated type covers its declaring class.
	TypeEvidenced
	// NonUniqueOverride is one of several implementations without type
	// evidence. Only materialized in include-uncertain mode.
	NonUniqueOverride
)

func (k EdgeKind) String() string {
	switch k {
	case Direct:
		return "direct"
	case UniqueOverride:
		return "unique_override"
	case TypeEvidenced:
		return "type_evidenced"
	case NonUniqueOverride:
		return "non_unique_override"
	default:
		return "unknown"
	}
}

// IsLikely reports whether edges of this kind are reasonably certain.
func (k EdgeKind) IsLikely() bool {
	return k != NonUniqueOverride
}

// Edge is a classified call from Caller to Callee.
type Edge struct {
	Caller program.Callable
	Callee program.Callable
	Kind   EdgeKind
	// Site is the call expression the edge was derived from.
	Site *program.Call
}

// Node is a callable together with its outgoing edges in insertion order.
type Node struct {
	Callable program.Callable

	mu    sync.RWMutex
	edges []Edge
}

// Edges returns every outgoing edge.
func (n *Node) Edges() []Edge {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]Edge(nil), n.edges...)
}

// LikelyEdges returns the outgoing edges whose kind is likely.
func (n *Node) LikelyEdges() []Edge {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var out []Edge
	for _, e := range n.edges {
		if e.Kind.IsLikely() {
			out = append(out, e)
		}
	}
	return out
}

// Graph maps callables to nodes. Nodes are created on first reference and
// never removed. Graph and Node are safe for concurrent use.
type Graph struct {
	mu    sync.Mutex
	nodes map[program.Callable]*Node
	order []*Node
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[program.Callable]*Node)}
}

// Node returns the node for c, creating it if needed.
func (g *Graph) Node(c program.Callable) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n, ok := g.nodes[c]; ok {
		return n
	}
	n := &Node{Callable: c}
	g.nodes[c] = n
	g.order = append(g.order, n)
	return n
}

// Lookup returns the node for c without creating it.
func (g *Graph) Lookup(c program.Callable) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[c]
	return n, ok
}

// Nodes returns every node in creation order.
func (g *Graph) Nodes() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Node(nil), g.order...)
}

// AddEdge attaches e to its caller's node and materializes the callee node.
func (g *Graph) AddEdge(e Edge) {
	caller := g.Node(e.Caller)
	g.Node(e.Callee)

	caller.mu.Lock()
	caller.edges = append(caller.edges, e)
	caller.mu.Unlock()
}

// Edges returns every edge of the graph, grouped by caller in node order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, n := range g.Nodes() {
		out = append(out, n.Edges()...)
	}
	return out
}

// Successors returns the distinct callees of c, following only likely edges
// when likely is set.
func (g *Graph) Successors(c program.Callable, likely bool) []program.Callable {
	n, ok := g.Lookup(c)
	if !ok {
		return nil
	}
	edges := n.Edges()
	if likely {
		edges = n.LikelyEdges()
	}
	var out []program.Callable
	seen := make(map[program.Callable]bool, len(edges))
	for _, e := range edges {
		if !seen[e.Callee] {
			seen[e.Callee] = true
			out = append(out, e.Callee)
		}
	}
	return out
}

// Stats counts nodes and edges per kind.
type Stats struct {
	Nodes  int
	Edges  int
	ByKind map[EdgeKind]int
}

// Stats summarizes the graph.
func (g *Graph) Stats() Stats {
	s := Stats{ByKind: make(map[EdgeKind]int)}
	for _, n := range g.Nodes() {
		s.Nodes++
		for _, e := range n.Edges() {
			s.Edges++
			s.ByKind[e.Kind]++
		}
	}
	return s
}
