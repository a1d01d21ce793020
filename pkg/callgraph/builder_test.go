package callgraph

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-call-graph/pkg/program"
	"github.com/l3aro/go-call-graph/pkg/typeeval"
)

func concrete(name string, params ...*program.Variable) *program.Method {
	return (&program.Method{Name: name, Params: params}).Append()
}

func abstract(name string) *program.Method {
	return &program.Method{Name: name, Modifiers: program.ModAbstract}
}

// shapes is Base with abstract m, overridden by SubA and optionally SubB,
// plus a Client class whose run method the tests fill in.
type shapes struct {
	p          *program.Program
	base       *program.Class
	baseM      *program.Method
	subA, subB *program.Class
	subAM      *program.Method
	subBM      *program.Method
	run        *program.Method
}

func newShapes(withSubB bool) *shapes {
	s := &shapes{p: program.NewProgram()}
	s.base = s.p.AddClass(&program.Class{Name: "Base", Modifiers: program.ModAbstract})
	s.baseM = s.base.AddMethod(abstract("m"))
	s.subA = s.p.AddClass((&program.Class{Name: "SubA"}).Extends(s.base))
	s.subAM = s.subA.AddMethod(concrete("m"))
	if withSubB {
		s.subB = s.p.AddClass((&program.Class{Name: "SubB"}).Extends(s.base))
		s.subBM = s.subB.AddMethod(concrete("m"))
	}
	client := s.p.AddClass(&program.Class{Name: "Client"})
	s.run = client.AddMethod(concrete("run"))
	return s
}

func build(t *testing.T, model program.Model, opts Options) *Graph {
	t.Helper()
	g, err := Build(context.Background(), model, opts)
	require.NoError(t, err)
	return g
}

func edgesOf(t *testing.T, g *Graph, caller program.Callable) []Edge {
	t.Helper()
	n, ok := g.Lookup(caller)
	require.True(t, ok, "no node for %s", caller.QualifiedName())
	return n.Edges()
}

func TestSingleOverrideOfAbstractMethod(t *testing.T) {
	s := newShapes(false)
	param := program.NewVariable("base", s.base)
	s.run.Params = []*program.Variable{param}
	call := program.Invoke(program.Ref(param), s.baseM)
	s.run.Append(program.Eval(call))

	g := build(t, s.p, Options{})

	edges := edgesOf(t, g, s.run)
	require.Len(t, edges, 1)
	assert.Equal(t, Edge{Caller: s.run, Callee: s.subAM, Kind: UniqueOverride, Site: call}, edges[0])
}

func TestTypeEvidenceSelectsInstantiatedSubclass(t *testing.T) {
	s := newShapes(true)
	x := program.NewVariable("x", s.base)
	s.run.Append(
		program.Declare(s.run, x, program.Instantiate(s.subA, nil)),
		program.Eval(program.Invoke(program.Ref(x), s.baseM)),
	)

	g := build(t, s.p, Options{})

	edges := edgesOf(t, g, s.run)
	require.Len(t, edges, 1)
	assert.Equal(t, s.subAM, edges[0].Callee)
	assert.Equal(t, TypeEvidenced, edges[0].Kind)
}

func TestIncludeUncertainKeepsUnevidencedCandidates(t *testing.T) {
	s := newShapes(true)
	x := program.NewVariable("x", s.base)
	s.run.Append(
		program.Declare(s.run, x, program.Instantiate(s.subA, nil)),
		program.Eval(program.Invoke(program.Ref(x), s.baseM)),
	)

	g := build(t, s.p, Options{IncludeUncertain: true})

	kinds := make(map[program.Callable]EdgeKind)
	for _, e := range edgesOf(t, g, s.run) {
		kinds[e.Callee] = e.Kind
	}
	assert.Equal(t, map[program.Callable]EdgeKind{
		s.subAM: TypeEvidenced,
		s.subBM: NonUniqueOverride,
		s.baseM: NonUniqueOverride,
	}, kinds)

	n, _ := g.Lookup(s.run)
	require.Len(t, n.LikelyEdges(), 1)
	assert.Equal(t, s.subAM, n.LikelyEdges()[0].Callee)
}

func TestNoEvidenceDropsAmbiguousCall(t *testing.T) {
	s := newShapes(true)
	param := program.NewVariable("base", s.base)
	s.run.Params = []*program.Variable{param}
	s.run.Append(program.Eval(program.Invoke(program.Ref(param), s.baseM)))

	g := build(t, s.p, Options{})

	_, ok := g.Lookup(s.run)
	assert.False(t, ok, "caller without edges is never materialized")
}

func TestDirectEdges(t *testing.T) {
	p := program.NewProgram()
	util := p.AddClass(&program.Class{Name: "Util"})
	static := util.AddMethod(&program.Method{Name: "now", Modifiers: program.ModStatic, HasBody: true})
	fin := util.AddMethod(&program.Method{Name: "close", Modifiers: program.ModFinal, HasBody: true})
	priv := util.AddMethod(&program.Method{Name: "helper", Modifiers: program.ModPrivate, HasBody: true})
	ctor := util.AddMethod(&program.Method{Name: "Util", IsConstructor: true, HasBody: true})
	sealed := p.AddClass(&program.Class{Name: "Sealed", Modifiers: program.ModFinal})
	sealedM := sealed.AddMethod(concrete("go"))
	anon := p.AddClass(&program.Class{Name: "Util$1", Kind: program.KindAnonymous})
	anonM := anon.AddMethod(concrete("run"))

	caller := util.AddMethod(concrete("main"))
	u := program.NewVariable("u", util)
	caller.Append(
		program.Declare(caller, u, program.Instantiate(util, ctor)),
		program.Eval(program.Invoke(&program.TypeRef{Name: "Util", Class: util}, static)),
		program.Eval(program.Invoke(program.Ref(u), fin)),
		program.Eval(program.Invoke(nil, priv)),
		program.Eval(program.Invoke(nil, sealedM)),
		program.Eval(program.Invoke(nil, anonM)),
	)

	g := build(t, p, Options{})

	var callees []program.Callable
	for _, e := range edgesOf(t, g, caller) {
		assert.Equal(t, Direct, e.Kind, "edge to %s", e.Callee.QualifiedName())
		callees = append(callees, e.Callee)
	}
	assert.Equal(t, []program.Callable{ctor, static, fin, priv, sealedM, anonM}, callees)
}

func TestConcreteMethodWithoutOverrides(t *testing.T) {
	p := program.NewProgram()
	svc := p.AddClass(&program.Class{Name: "Service"})
	load := svc.AddMethod(concrete("load"))
	caller := svc.AddMethod(concrete("start"))
	caller.Append(program.Eval(program.Invoke(&program.This{Class: svc}, load)))

	g := build(t, p, Options{})

	edges := edgesOf(t, g, caller)
	require.Len(t, edges, 1)
	assert.Equal(t, UniqueOverride, edges[0].Kind)
	assert.Equal(t, load, edges[0].Callee)
}

func TestSuperCallIsDirect(t *testing.T) {
	p := program.NewProgram()
	base := p.AddClass(&program.Class{Name: "Base"})
	baseM := base.AddMethod(concrete("m"))
	sub := p.AddClass((&program.Class{Name: "Sub"}).Extends(base))
	subM := sub.AddMethod(concrete("m"))
	subM.Append(program.Eval(program.Invoke(&program.This{Class: sub, Super: true}, baseM)))

	for _, uncertain := range []bool{false, true} {
		g := build(t, p, Options{IncludeUncertain: uncertain})

		edges := edgesOf(t, g, subM)
		require.Len(t, edges, 1, "uncertain=%v", uncertain)
		assert.Equal(t, baseM, edges[0].Callee)
		assert.Equal(t, Direct, edges[0].Kind)
	}
}

func TestInterfaceDefaultMethodIsDirectlyCallable(t *testing.T) {
	p := program.NewProgram()
	greeter := p.AddClass(&program.Class{Name: "Greeter", Kind: program.KindInterface})
	greet := greeter.AddMethod(&program.Method{Name: "greet", Modifiers: program.ModDefault, HasBody: true})
	loud := p.AddClass((&program.Class{Name: "Loud"}).Extends(greeter))
	loudGreet := loud.AddMethod(concrete("greet"))

	app := p.AddClass(&program.Class{Name: "App"})
	caller := app.AddMethod(concrete("main"))
	g1 := program.NewVariable("g", greeter)
	caller.Append(
		program.Declare(caller, g1, program.Instantiate(loud, nil)),
		program.Eval(program.Invoke(program.Ref(g1), greet)),
	)

	g := build(t, p, Options{IncludeUncertain: true})

	edges := edgesOf(t, g, caller)
	require.Len(t, edges, 2, "a default method with one override stays ambiguous")
	assert.Equal(t, Edge{Caller: caller, Callee: loudGreet, Kind: TypeEvidenced, Site: edges[0].Site}, edges[0])
	assert.Equal(t, greet, edges[1].Callee)
	assert.Equal(t, NonUniqueOverride, edges[1].Kind)
}

func TestFunctionalCallReachesLambda(t *testing.T) {
	p := program.NewProgram()
	runnable := p.AddClass(&program.Class{Name: "Runnable", Kind: program.KindInterface})
	runM := runnable.AddMethod(abstract("run"))
	app := p.AddClass(&program.Class{Name: "App"})
	work := app.AddMethod(concrete("work"))
	start := app.AddMethod(concrete("start"))

	lambda := program.NewLambda(start, 1, program.Position{})
	lambda.Append(program.Eval(program.Invoke(&program.This{Class: app}, work)))
	r := program.NewVariable("r", runnable)
	start.Append(
		program.Declare(start, r, &program.LambdaExpr{Lambda: lambda}),
		program.Eval(program.Invoke(program.Ref(r), runM)),
	)

	g := build(t, p, Options{})

	edges := edgesOf(t, g, start)
	require.Len(t, edges, 1)
	assert.Equal(t, program.Callable(lambda), edges[0].Callee)
	assert.Equal(t, TypeEvidenced, edges[0].Kind)

	inner := edgesOf(t, g, lambda)
	require.Len(t, inner, 1)
	assert.Equal(t, work, inner[0].Callee)
}

func TestUnresolvedAndFieldInitializerCallsAreSkipped(t *testing.T) {
	p := program.NewProgram()
	app := p.AddClass(&program.Class{Name: "App"})
	factory := app.AddMethod(&program.Method{Name: "create", Modifiers: program.ModStatic, HasBody: true})
	app.AddField(program.NewVariable("instance", app), program.Invoke(nil, factory))
	caller := app.AddMethod(concrete("main"))
	caller.Append(program.Eval(&program.Call{Name: "println"}))

	b := NewBuilder(p, Options{})
	g, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Empty(t, g.Nodes())
	assert.Equal(t, BuildStats{CallSites: 2, UnresolvedCallee: 1, NoEnclosing: 1}, b.Stats())
}

func TestStrictTypesAbortsBuild(t *testing.T) {
	p := program.NewProgram()
	app := p.AddClass(&program.Class{Name: "App"})
	caller := app.AddMethod(concrete("main"))
	caller.Append(program.Declare(caller, program.NewVariable("w", nil), &program.New{TypeName: "Widget"}))

	_, err := Build(context.Background(), p, Options{})
	require.NoError(t, err)

	_, err = Build(context.Background(), p, Options{StrictTypes: true})
	assert.ErrorIs(t, err, typeeval.ErrUnresolvedConstructor)
}

func TestBuildHonoursCancellation(t *testing.T) {
	s := newShapes(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, s.p, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildIsDeterministic(t *testing.T) {
	s := newShapes(true)
	x := program.NewVariable("x", s.base)
	param := program.NewVariable("b", s.base)
	s.run.Params = []*program.Variable{param}
	s.run.Append(
		program.Declare(s.run, x, program.Instantiate(s.subA, nil)),
		program.AssignTo(x, program.Instantiate(s.subB, nil)),
		program.Eval(program.Invoke(program.Ref(x), s.baseM)),
		program.Eval(program.Invoke(program.Ref(param), s.baseM)),
	)

	triples := func() []string {
		g := build(t, s.p, Options{IncludeUncertain: true})
		var out []string
		for _, e := range g.Edges() {
			out = append(out, fmt.Sprintf("%s -> %s [%s]", e.Caller.QualifiedName(), e.Callee.QualifiedName(), e.Kind))
		}
		sort.Strings(out)
		return out
	}

	first := triples()
	assert.Equal(t, first, triples())
	assert.Equal(t, []string{
		"Client.run -> Base.m [non_unique_override]",
		"Client.run -> Base.m [non_unique_override]",
		"Client.run -> SubA.m [non_unique_override]",
		"Client.run -> SubA.m [type_evidenced]",
		"Client.run -> SubB.m [non_unique_override]",
		"Client.run -> SubB.m [type_evidenced]",
	}, first)
}

func TestDirectAndUniqueEdgesAreAloneAtTheirSite(t *testing.T) {
	s := newShapes(true)
	x := program.NewVariable("x", s.base)
	s.run.Append(
		program.Declare(s.run, x, program.Instantiate(s.subA, nil)),
		program.Eval(program.Invoke(program.Ref(x), s.baseM)),
		program.Eval(program.Invoke(program.Ref(x), s.subAM)),
	)

	g := build(t, s.p, Options{IncludeUncertain: true})

	bySite := make(map[*program.Call][]Edge)
	for _, e := range g.Edges() {
		bySite[e.Site] = append(bySite[e.Site], e)
	}
	for _, edges := range bySite {
		for _, e := range edges {
			if e.Kind == Direct || e.Kind == UniqueOverride {
				assert.Len(t, edges, 1)
			}
		}
	}
}
