// Package hierarchy indexes direct subclass and direct override relations
// of a program and derives their transitive closures on demand.
package hierarchy

import (
	"sync"

	"github.com/l3aro/go-call-graph/pkg/program"
)

// Hierarchy holds the direct inheritor and direct override multimaps.
//
// Class and override relations are acyclic in well-formed programs. The
// closures still keep a visited set so a malformed input terminates.
// Closures are memoised per key and dropped whenever the maps change.
type Hierarchy struct {
	model program.Model

	mu               sync.RWMutex
	directInheritors map[*program.Class][]*program.Class
	directOverrides  map[*program.Method][]*program.Method

	allInheritors map[*program.Class][]*program.Class
	allOverrides  map[*program.Method][]*program.Method
}

// New creates an empty hierarchy backed by model for supertype and
// super-method resolution.
func New(model program.Model) *Hierarchy {
	return &Hierarchy{
		model:            model,
		directInheritors: make(map[*program.Class][]*program.Class),
		directOverrides:  make(map[*program.Method][]*program.Method),
		allInheritors:    make(map[*program.Class][]*program.Class),
		allOverrides:     make(map[*program.Method][]*program.Method),
	}
}

// Build indexes every class and method of the model.
func Build(model program.Model) *Hierarchy {
	h := New(model)
	for _, c := range model.Classes() {
		h.AddClass(c)
		for _, m := range c.Methods {
			h.AddMethod(m)
		}
	}
	return h
}

// AddClass records c as a direct inheritor of each resolvable supertype.
func (h *Hierarchy) AddClass(c *program.Class) {
	supers := h.model.DirectSupertypes(c)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range supers {
		h.directInheritors[s] = append(h.directInheritors[s], c)
	}
	h.invalidate()
}

// AddMethod records m as a direct override of each method it overrides.
func (h *Hierarchy) AddMethod(m *program.Method) {
	supers := h.model.DirectSuperMethods(m)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range supers {
		h.directOverrides[s] = append(h.directOverrides[s], m)
	}
	h.invalidate()
}

func (h *Hierarchy) invalidate() {
	if len(h.allInheritors) > 0 {
		h.allInheritors = make(map[*program.Class][]*program.Class)
	}
	if len(h.allOverrides) > 0 {
		h.allOverrides = make(map[*program.Method][]*program.Method)
	}
}

// DirectInheritorsOf returns the classes that name c as a direct supertype.
func (h *Hierarchy) DirectInheritorsOf(c *program.Class) []*program.Class {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.directInheritors[c]
}

// DirectOverridesOf returns the methods that directly override m.
func (h *Hierarchy) DirectOverridesOf(m *program.Method) []*program.Method {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.directOverrides[m]
}

// AllInheritorsOf returns every transitive inheritor of c, breadth first.
func (h *Hierarchy) AllInheritorsOf(c *program.Class) []*program.Class {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cached, ok := h.allInheritors[c]; ok {
		return cached
	}
	all := closure(c, h.directInheritors)
	h.allInheritors[c] = all
	return all
}

// AllOverridesOf returns every transitive override of m, breadth first.
func (h *Hierarchy) AllOverridesOf(m *program.Method) []*program.Method {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cached, ok := h.allOverrides[m]; ok {
		return cached
	}
	all := closure(m, h.directOverrides)
	h.allOverrides[m] = all
	return all
}

// closure expands the direct relation from root until no new element
// appears. root itself is never part of the result.
func closure[T comparable](root T, direct map[T][]T) []T {
	var out []T
	visited := map[T]bool{root: true}
	frontier := direct[root]
	for len(frontier) > 0 {
		var next []T
		for _, e := range frontier {
			if visited[e] {
				continue
			}
			visited[e] = true
			out = append(out, e)
			next = append(next, direct[e]...)
		}
		frontier = next
	}
	return out
}
