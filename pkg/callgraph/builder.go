package callgraph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/l3aro/go-call-graph/internal/log"
	"github.com/l3aro/go-call-graph/pkg/hierarchy"
	"github.com/l3aro/go-call-graph/pkg/program"
	"github.com/l3aro/go-call-graph/pkg/targets"
	"github.com/l3aro/go-call-graph/pkg/typeeval"
)

var tracer = otel.Tracer("gcg.callgraph")

// Options configures a Builder.
type Options struct {
	// IncludeUncertain materializes NonUniqueOverride edges.
	IncludeUncertain bool
	// StrictTypes aborts the build on a constructor call whose type the
	// model cannot resolve. By default such calls are skipped.
	StrictTypes bool
	// Logger receives skip diagnostics at debug level. Nil discards them.
	Logger log.Logger
}

// BuildStats counts what the builder saw and skipped.
type BuildStats struct {
	CallSites        int
	UnresolvedCallee int
	NoEnclosing      int
	FunctionalCalls  int
}

// Builder classifies every call expression of a model into graph edges.
type Builder struct {
	model  program.Model
	opts   Options
	logger log.Logger

	hierarchy *hierarchy.Hierarchy
	types     *typeeval.Evaluator
	targets   *targets.Evaluator

	graph *Graph
	stats BuildStats
}

// NewBuilder creates a builder for model.
func NewBuilder(model program.Model, opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Builder{model: model, opts: opts, logger: logger}
}

// Build is shorthand for NewBuilder(model, opts).Build(ctx).
func Build(ctx context.Context, model program.Model, opts Options) (*Graph, error) {
	return NewBuilder(model, opts).Build(ctx)
}

// Build runs the analysis passes and returns the graph. The first pass
// indexes the hierarchy and estimates variable types; the second classifies
// calls. Cancellation is honoured between classes.
func (b *Builder) Build(ctx context.Context) (*Graph, error) {
	ctx, span := tracer.Start(ctx, "CallGraphBuilder.Build",
		trace.WithAttributes(
			attribute.Int("classes.count", len(b.model.Classes())),
			attribute.Bool("include_uncertain", b.opts.IncludeUncertain),
		),
	)
	defer span.End()

	b.graph = NewGraph()
	b.stats = BuildStats{}
	b.hierarchy = hierarchy.Build(b.model)
	b.types = typeeval.New(b.model, typeeval.WithStrictTypes(b.opts.StrictTypes))
	b.targets = targets.New(b.model, targets.WithStrictTypes(b.opts.StrictTypes))

	if err := program.Walk(ctx, b.model, program.Multi(b.types.Visitor(), b.targets.Visitor())); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("estimating types: %w", err)
	}
	if err := firstErr(b.types.Err(), b.targets.Err()); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("estimating types: %w", err)
	}

	if err := program.Walk(ctx, b.model, callVisitor{b: b}); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("classifying calls: %w", err)
	}

	st := b.graph.Stats()
	span.SetAttributes(
		attribute.Int("nodes.count", st.Nodes),
		attribute.Int("edges.count", st.Edges),
		attribute.Int("call_sites.count", b.stats.CallSites),
		attribute.Int("call_sites.unresolved", b.stats.UnresolvedCallee),
	)
	b.logger.Debug("call graph built",
		"nodes", st.Nodes,
		"edges", st.Edges,
		"call_sites", b.stats.CallSites,
		"unresolved", b.stats.UnresolvedCallee,
		"no_enclosing", b.stats.NoEnclosing,
	)
	return b.graph, nil
}

// Stats returns the counters of the last Build.
func (b *Builder) Stats() BuildStats {
	return b.stats
}

// Hierarchy returns the class hierarchy indexed by the last Build.
func (b *Builder) Hierarchy() *hierarchy.Hierarchy {
	return b.hierarchy
}

// Types returns the type estimates computed by the last Build.
func (b *Builder) Types() *typeeval.Evaluator {
	return b.types
}

type callVisitor struct {
	program.BaseVisitor
	b *Builder
}

func (v callVisitor) VisitCall(call *program.Call, in program.Callable) {
	v.b.addCall(call, in)
}

func (b *Builder) addCall(call *program.Call, caller program.Callable) {
	b.stats.CallSites++

	callee, ok := b.model.ResolveCallee(call)
	if !ok {
		b.stats.UnresolvedCallee++
		b.logger.Debug("skipping unresolved call", "name", call.Name, "pos", call.Pos)
		return
	}
	if caller == nil {
		b.stats.NoEnclosing++
		b.logger.Debug("skipping call outside any callable", "callee", callee, "pos", call.Pos)
		return
	}

	if functional := b.targets.Get(call); len(functional) > 0 {
		b.stats.FunctionalCalls++
		for _, t := range functional {
			b.emit(caller, t.Callable(), TypeEvidenced, call)
		}
		return
	}

	if isSuperCall(call) || !canBeOverridden(callee) {
		b.emit(caller, callee, Direct, call)
		return
	}

	overrides := b.hierarchy.AllOverridesOf(callee)
	if len(overrides) == 0 {
		b.emit(caller, callee, UniqueOverride, call)
		return
	}
	if !isDirectlyCallable(callee) && len(overrides) == 1 {
		b.emit(caller, overrides[0], UniqueOverride, call)
		return
	}

	estimate := b.receiverEstimate(call)
	candidates := append(append([]*program.Method(nil), overrides...), callee)
	for _, candidate := range candidates {
		switch {
		case estimate.Covers(candidate.Class):
			b.emit(caller, candidate, TypeEvidenced, call)
		case b.opts.IncludeUncertain:
			b.emit(caller, candidate, NonUniqueOverride, call)
		}
	}
}

func (b *Builder) emit(caller, callee program.Callable, kind EdgeKind, site *program.Call) {
	b.graph.AddEdge(Edge{Caller: caller, Callee: callee, Kind: kind, Site: site})
}

// receiverEstimate is the type estimate of a plain variable receiver, or
// Bottom for any other receiver shape.
func (b *Builder) receiverEstimate(call *program.Call) typeeval.Estimate {
	ref, ok := call.Receiver.(*program.VarRef)
	if !ok || ref.Var == nil {
		return typeeval.Bottom
	}
	return b.types.Get(ref.Var)
}

// canBeOverridden is false for constructors, static, final and private
// methods, and for methods of anonymous or final classes.
func canBeOverridden(m *program.Method) bool {
	if m.IsConstructor {
		return false
	}
	if m.Modifiers.Has(program.ModStatic) || m.Modifiers.Has(program.ModFinal) || m.Modifiers.Has(program.ModPrivate) {
		return false
	}
	if c := m.Class; c != nil && (c.IsAnonymous() || c.IsFinal()) {
		return false
	}
	return true
}

// isSuperCall reports a super.m() call, which is statically dispatched.
func isSuperCall(call *program.Call) bool {
	this, ok := call.Receiver.(*program.This)
	return ok && this.Super
}

// isDirectlyCallable is false for methods without a body. Interface default
// methods have one.
func isDirectlyCallable(m *program.Method) bool {
	return !m.IsAbstract()
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
