// Package checker reports call chains that cross from one annotated
// execution context into an incompatible one.
package checker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/l3aro/go-call-graph/internal/log"
	"github.com/l3aro/go-call-graph/pkg/callgraph"
	"github.com/l3aro/go-call-graph/pkg/pathsearch"
	"github.com/l3aro/go-call-graph/pkg/program"
)

var tracer = otel.Tracer("gcg.checker")

// Rule names two annotation sets whose contexts must not call into each
// other. A callable carrying any annotation of A is in context A.
type Rule struct {
	Name string   `yaml:"name" json:"name"`
	A    []string `yaml:"a" json:"a"`
	B    []string `yaml:"b" json:"b"`
}

// DefaultRules separates UI-thread code from worker-thread code.
func DefaultRules() []Rule {
	return []Rule{{
		Name: "thread",
		A:    []string{"UiThread", "MainThread"},
		B:    []string{"WorkerThread", "BinderThread"},
	}}
}

// Violation is a call chain from a callable in one context of a rule to a
// callable in the other.
type Violation struct {
	Rule  string
	From  []string
	To    []string
	Chain []program.Callable
}

func (v Violation) String() string {
	names := make([]string, len(v.Chain))
	for i, c := range v.Chain {
		names[i] = c.QualifiedName()
	}
	return fmt.Sprintf("[%s] %s -> %s: %s", v.Rule,
		strings.Join(v.From, "|"), strings.Join(v.To, "|"), strings.Join(names, " -> "))
}

// Options configures a Checker.
type Options struct {
	// Rules default to DefaultRules when empty.
	Rules  []Rule
	Build  callgraph.Options
	Logger log.Logger
}

// Checker tags callables by context and searches the call graph for
// chains that connect incompatible contexts.
type Checker struct {
	model  program.Model
	rules  []Rule
	build  callgraph.Options
	logger log.Logger
}

// New creates a checker over model.
func New(model program.Model, opts Options) *Checker {
	c := &Checker{
		model:  model,
		rules:  opts.Rules,
		build:  opts.Build,
		logger: opts.Logger,
	}
	if len(c.rules) == 0 {
		c.rules = DefaultRules()
	}
	if c.logger == nil {
		c.logger = log.Nop()
	}
	if c.build.Logger == nil {
		c.build.Logger = c.logger
	}
	return c
}

// Check builds the call graph and reports every violation. A build failure
// aborts the check; no partial result is returned with an error.
func (c *Checker) Check(ctx context.Context) ([]Violation, error) {
	g, err := callgraph.Build(ctx, c.model, c.build)
	if err != nil {
		return nil, fmt.Errorf("building call graph: %w", err)
	}
	return c.CheckGraph(ctx, g)
}

// CheckGraph reports the violations found in an already built graph.
// Only likely edges are followed.
func (c *Checker) CheckGraph(ctx context.Context, g *callgraph.Graph) ([]Violation, error) {
	_, span := tracer.Start(ctx, "Checker.CheckGraph",
		trace.WithAttributes(attribute.Int("rules.count", len(c.rules))),
	)
	defer span.End()

	next := func(n program.Callable) []program.Callable {
		return g.Successors(n, true)
	}

	lambdas := &lambdaCollector{}
	if err := program.Walk(ctx, c.model, lambdas); err != nil {
		return nil, err
	}

	var out []Violation
	for _, rule := range c.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, b := c.collect(rule, lambdas.lambdas)
		c.logger.Debug("tagged callables", "rule", rule.Name, "a", len(a), "b", len(b))

		for _, path := range pathsearch.Disjoint(a, b, next) {
			out = append(out, Violation{Rule: rule.Name, From: rule.A, To: rule.B, Chain: path})
		}
		for _, path := range pathsearch.Disjoint(b, a, next) {
			out = append(out, Violation{Rule: rule.Name, From: rule.B, To: rule.A, Chain: path})
		}
	}

	span.SetAttributes(attribute.Int("violations.count", len(out)))
	return out, nil
}

// group is the context of a callable under one rule.
type group int

const (
	none group = iota
	groupA
	groupB
)

// collect returns the callables in context A and context B, sorted by
// name. Lambdas only take the context of their declaring class.
func (c *Checker) collect(rule Rule, lambdas []*program.Lambda) (a, b []program.Callable) {
	add := func(cb program.Callable, g group) {
		switch g {
		case groupA:
			a = append(a, cb)
		case groupB:
			b = append(b, cb)
		}
	}
	for _, class := range c.model.Classes() {
		for _, m := range class.Methods {
			add(m, tag(m, rule))
		}
	}
	for _, l := range lambdas {
		add(l, classTag(l.DeclaringClass(), rule))
	}
	sortCallables(a)
	sortCallables(b)
	return a, b
}

// tag uses the method's own annotations first, then those of the nearest
// enclosing class that carries one of the rule's annotations.
func tag(m *program.Method, rule Rule) group {
	if g := match(m.HasAnnotation, rule); g != none {
		return g
	}
	return classTag(m.Class, rule)
}

func classTag(class *program.Class, rule Rule) group {
	for ; class != nil; class = class.Outer {
		if g := match(class.HasAnnotation, rule); g != none {
			return g
		}
	}
	return none
}

type lambdaCollector struct {
	program.BaseVisitor
	lambdas []*program.Lambda
}

func (lc *lambdaCollector) VisitLambda(l *program.Lambda) {
	lc.lambdas = append(lc.lambdas, l)
}

func match(has func(string) bool, rule Rule) group {
	for _, name := range rule.A {
		if has(name) {
			return groupA
		}
	}
	for _, name := range rule.B {
		if has(name) {
			return groupB
		}
	}
	return none
}

func sortCallables(cs []program.Callable) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].QualifiedName() != cs[j].QualifiedName() {
			return cs[i].QualifiedName() < cs[j].QualifiedName()
		}
		return cs[i].Position().Line < cs[j].Position().Line
	})
}
