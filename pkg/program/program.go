package program

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Model is the query surface the analyses need from a host.
// Resolution may be slow on large programs; callers that repeat a query
// should cache the answer.
type Model interface {
	// Classes enumerates every declaration in scope, anonymous classes included.
	Classes() []*Class
	// DirectSupertypes returns the supertypes of c that resolve to program classes.
	DirectSupertypes(c *Class) []*Class
	// DirectSuperMethods returns the methods m directly overrides.
	DirectSuperMethods(m *Method) []*Method
	// ResolveCallee returns the statically declared target of a call.
	ResolveCallee(call *Call) (*Method, bool)
	// ConstructedType returns the runtime type produced by a New.
	ConstructedType(n *New) (*Class, bool)
	// ResolveReference returns the method a method reference denotes.
	ResolveReference(r *MethodRef) (*Method, bool)
	// FindOverrideIn returns the concrete implementation of m that an
	// instance of c dispatches to.
	FindOverrideIn(c *Class, m *Method) (*Method, bool)
	// SingleAbstractMethod returns the only abstract method of a functional
	// interface.
	SingleAbstractMethod(c *Class) (*Method, bool)
}

// Program is an in-memory Model. Hosts build it once and treat it as
// read-only afterwards; the cached queries are safe for concurrent use.
type Program struct {
	classes  []*Class
	byName   map[string]*Class
	bySimple map[string][]*Class

	mu           sync.Mutex
	superMethods map[*Method][]*Method
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{
		byName:       make(map[string]*Class),
		bySimple:     make(map[string][]*Class),
		superMethods: make(map[*Method][]*Method),
	}
}

// AddClass registers c and returns it. Registering a name twice keeps the
// first class for name lookups; both are enumerated.
func (p *Program) AddClass(c *Class) *Class {
	p.classes = append(p.classes, c)
	if _, exists := p.byName[c.Name]; !exists {
		p.byName[c.Name] = c
	}
	simple := c.SimpleName()
	p.bySimple[simple] = append(p.bySimple[simple], c)
	return c
}

// Lookup finds a class by qualified name.
func (p *Program) Lookup(name string) (*Class, bool) {
	c, ok := p.byName[name]
	return c, ok
}

// LookupSimple returns the classes whose simple name matches, in
// registration order.
func (p *Program) LookupSimple(name string) []*Class {
	return p.bySimple[name]
}

// Callables returns every method plus every lambda reachable from method
// and field bodies, sorted by qualified name.
func (p *Program) Callables() []Callable {
	var out []Callable
	for _, c := range p.classes {
		for _, m := range c.Methods {
			out = append(out, m)
		}
	}
	collector := &lambdaCollector{}
	_ = Walk(context.Background(), p, collector)
	for _, l := range collector.lambdas {
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].QualifiedName() < out[j].QualifiedName()
	})
	return out
}

type lambdaCollector struct {
	BaseVisitor
	lambdas []*Lambda
}

func (lc *lambdaCollector) VisitLambda(l *Lambda) {
	lc.lambdas = append(lc.lambdas, l)
}

func (p *Program) Classes() []*Class {
	return p.classes
}

func (p *Program) DirectSupertypes(c *Class) []*Class {
	return c.Supertypes
}

func (p *Program) DirectSuperMethods(m *Method) []*Method {
	if !canOverride(m) || m.Class == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.superMethods[m]; ok {
		return cached
	}

	var supers []*Method
	seen := make(map[*Method]bool)
	for _, s := range m.Class.Supertypes {
		if sm := nearestDeclaration(s, m.Signature()); sm != nil && !seen[sm] {
			seen[sm] = true
			supers = append(supers, sm)
		}
	}
	p.superMethods[m] = supers
	return supers
}

func (p *Program) ResolveCallee(call *Call) (*Method, bool) {
	if call == nil || call.Callee == nil {
		return nil, false
	}
	return call.Callee, true
}

func (p *Program) ConstructedType(n *New) (*Class, bool) {
	if n == nil || n.Class == nil {
		return nil, false
	}
	return n.Class, true
}

func (p *Program) ResolveReference(r *MethodRef) (*Method, bool) {
	if r == nil || r.Target == nil {
		return nil, false
	}
	return r.Target, true
}

func (p *Program) FindOverrideIn(c *Class, m *Method) (*Method, bool) {
	sig := m.Signature()
	for _, candidate := range append([]*Class{c}, c.Ancestors()...) {
		for _, cm := range candidate.Methods {
			if cm.IsConstructor || cm.Signature() != sig {
				continue
			}
			if !cm.IsAbstract() {
				return cm, true
			}
		}
	}
	return nil, false
}

// objectMethods do not count against the single abstract method of a
// functional interface.
var objectMethods = map[string]bool{
	"equals/1":   true,
	"hashCode/0": true,
	"toString/0": true,
}

func (p *Program) SingleAbstractMethod(c *Class) (*Method, bool) {
	if c == nil || !c.IsInterface() {
		return nil, false
	}

	abstract := make(map[string]*Method)
	implemented := make(map[string]bool)
	for _, k := range append([]*Class{c}, c.Ancestors()...) {
		for _, m := range k.Methods {
			sig := m.Signature()
			if m.Modifiers.Has(ModStatic) || objectMethods[sig] {
				continue
			}
			if m.IsAbstract() {
				if _, ok := abstract[sig]; !ok {
					abstract[sig] = m
				}
			} else {
				implemented[sig] = true
			}
		}
	}

	var sam *Method
	for sig, m := range abstract {
		if implemented[sig] {
			continue
		}
		if sam != nil {
			return nil, false
		}
		sam = m
	}
	return sam, sam != nil
}

// canOverride reports whether m takes part in overriding at all.
func canOverride(m *Method) bool {
	return !m.IsConstructor && !m.Modifiers.Has(ModStatic) && !m.Modifiers.Has(ModPrivate)
}

// nearestDeclaration finds the first overridable method with signature sig
// in c or its ancestors.
func nearestDeclaration(c *Class, sig string) *Method {
	for _, k := range append([]*Class{c}, c.Ancestors()...) {
		for _, m := range k.Methods {
			if m.Signature() == sig && canOverride(m) {
				return m
			}
		}
	}
	return nil
}

// SimpleTypeName strips package qualifiers, generic arguments and array
// brackets from a type as written in source.
func SimpleTypeName(written string) string {
	name := strings.TrimSpace(written)
	if i := strings.Index(name, "<"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSuffix(strings.TrimSuffix(name, "..."), "[]")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
