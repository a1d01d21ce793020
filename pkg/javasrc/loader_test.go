package javasrc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-call-graph/pkg/callgraph"
	"github.com/l3aro/go-call-graph/pkg/program"
)

func load(t *testing.T, files map[string]string) *program.Program {
	t.Helper()
	var sources []Source
	for path, content := range files {
		sources = append(sources, Source{Path: path, Content: []byte(content)})
	}
	p, err := NewLoader().Load(context.Background(), sources)
	require.NoError(t, err)
	return p
}

func class(t *testing.T, p *program.Program, name string) *program.Class {
	t.Helper()
	c, ok := p.Lookup(name)
	require.True(t, ok, "class %s not declared", name)
	return c
}

func methodOf(t *testing.T, c *program.Class, name string) *program.Method {
	t.Helper()
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("%s has no method %s", c.Name, name)
	return nil
}

// calls returns every call of a body, including constructor calls and calls
// nested in arguments, in walk order.
func calls(t *testing.T, p *program.Program, in program.Callable) []*program.Call {
	t.Helper()
	rec := &callRecorder{in: in}
	require.NoError(t, program.Walk(context.Background(), p, rec))
	return rec.calls
}

type callRecorder struct {
	program.BaseVisitor
	in    program.Callable
	calls []*program.Call
}

func (r *callRecorder) VisitCall(call *program.Call, in program.Callable) {
	if in == r.in {
		r.calls = append(r.calls, call)
	}
}

const shapeSrc = `package app.model;

public abstract class Shape {
    public abstract void render();
}
`

const squareSrc = `package app.model;

public final class Square extends Shape {
    @Override
    public void render() {}
}
`

const canvasSrc = `package app;

import app.model.Shape;
import app.model.*;

public class Canvas {
    private Shape current;

    public void draw() {
        Shape s = new Circle();
        s.render();
        current = new Square();
        this.current.render();
        helper(1);
        for (Shape each : shapes()) {
            each.render();
        }
    }

    private void helper(int n) {}

    Shape[] shapes() { return null; }
}

class Circle extends Shape {
    public void render() {}
}
`

func TestLoadResolvesTypesAndCallees(t *testing.T) {
	p := load(t, map[string]string{
		"model/Shape.java":  shapeSrc,
		"model/Square.java": squareSrc,
		"app/Canvas.java":   canvasSrc,
	})

	shape := class(t, p, "app.model.Shape")
	circle := class(t, p, "app.Circle")
	square := class(t, p, "app.model.Square")
	canvas := class(t, p, "app.Canvas")

	assert.Equal(t, []*program.Class{shape}, circle.Supertypes)
	assert.Equal(t, []*program.Class{shape}, square.Supertypes)
	assert.True(t, square.IsFinal())
	assert.True(t, shape.IsAbstract())
	assert.Same(t, shape, canvas.Field("current").Type)

	draw := methodOf(t, canvas, "draw")
	render := methodOf(t, shape, "render")
	helper := methodOf(t, canvas, "helper")

	decl, ok := draw.Body[0].(*program.VarDecl)
	require.True(t, ok, "first statement is %T", draw.Body[0])
	assert.Equal(t, "s", decl.Var.Name)
	assert.Same(t, shape, decl.Var.Type)
	assert.Same(t, draw, decl.Var.Owner)
	newCircle, ok := decl.Init.(*program.New)
	require.True(t, ok)
	assert.Same(t, circle, newCircle.Class)

	assign, ok := draw.Body[2].(*program.Assign)
	require.True(t, ok, "third statement is %T", draw.Body[2])
	assert.Same(t, canvas.Field("current"), assign.Target.(*program.VarRef).Var)
	assert.Same(t, square, assign.Value.(*program.New).Class)

	var resolved []string
	for _, call := range calls(t, p, draw) {
		if call.Callee != nil {
			resolved = append(resolved, call.Callee.QualifiedName())
		}
	}
	assert.Equal(t, []string{
		"app.model.Shape.render",
		"app.model.Shape.render",
		"app.Canvas.helper",
		"app.Canvas.shapes",
		"app.model.Shape.render",
	}, resolved)

	helperCall := calls(t, p, draw)[4]
	assert.Same(t, helper, helperCall.Callee)
	assert.Nil(t, helperCall.Receiver)
	assert.Same(t, render, calls(t, p, draw)[1].Callee)
}

const screenSrc = `package ui;

public class Screen {
    interface Listener {
        void onEvent(String e);
    }

    private Listener listener = e -> log(e);

    void register() {
        final String tag = "screen";
        Runnable r = new Runnable() {
            @Override
            public void run() {
                notifyUser();
                log(tag);
            }
        };
        Listener l = this::log;
        Runnable nested = () -> {
            Runnable inner = () -> notifyUser();
        };
    }

    void log(String s) {}

    void notifyUser() {}
}
`

func TestAnonymousClassesAndLambdas(t *testing.T) {
	p := load(t, map[string]string{"ui/Screen.java": screenSrc})

	screen := class(t, p, "ui.Screen")
	listener := class(t, p, "ui.Screen.Listener")
	anon := class(t, p, "ui.Screen$1")
	logM := methodOf(t, screen, "log")
	notifyUser := methodOf(t, screen, "notifyUser")

	assert.True(t, listener.IsInterface())
	assert.True(t, methodOf(t, listener, "onEvent").IsAbstract())
	assert.Same(t, listener, screen.Field("listener").Type)

	assert.Equal(t, program.KindAnonymous, anon.Kind)
	assert.Same(t, screen, anon.Outer)
	assert.Equal(t, []string{"Runnable"}, anon.SuperNames)
	assert.Empty(t, anon.Supertypes)

	run := methodOf(t, anon, "run")
	assert.Equal(t, []string{"Override"}, run.Annotations)
	runCalls := calls(t, p, run)
	require.Len(t, runCalls, 2)
	assert.Same(t, notifyUser, runCalls[0].Callee)
	assert.Same(t, logM, runCalls[1].Callee)
	tag := runCalls[1].Args[0].(*program.VarRef).Var
	assert.Equal(t, "tag", tag.Name)
	assert.Same(t, methodOf(t, screen, "register"), tag.Owner)

	field := screen.Fields[0]
	lx, ok := field.Init.(*program.LambdaExpr)
	require.True(t, ok, "field initializer is %T", field.Init)
	assert.Nil(t, lx.Lambda.Enclosing)
	assert.Same(t, screen, lx.Lambda.DeclaringClass())
	assert.Equal(t, "ui.Screen.<field>$lambda$1", lx.Lambda.QualifiedName())
	fieldCalls := calls(t, p, lx.Lambda)
	require.Len(t, fieldCalls, 1)
	assert.Same(t, logM, fieldCalls[0].Callee)

	register := methodOf(t, screen, "register")
	refDecl := register.Body[2].(*program.VarDecl)
	assert.Same(t, logM, refDecl.Init.(*program.MethodRef).Target)

	var names []string
	for _, c := range p.Callables() {
		if l, ok := c.(*program.Lambda); ok {
			names = append(names, l.QualifiedName())
		}
	}
	assert.ElementsMatch(t, []string{
		"ui.Screen.<field>$lambda$1",
		"ui.Screen.register$lambda$1",
		"ui.Screen.register$lambda$1$lambda$1",
	}, names)
}

const modeSrc = `package app;

public enum Mode {
    FAST(1) {
        @Override
        void apply() { tune(); }
    },
    SLOW(2);

    Mode(int weight) {}

    void apply() {}

    void tune() {}
}

class Base {
    Base(int x) {}
}

class Derived extends Base {
    Derived() { super(1); }

    Derived(String s) { this(); }

    static {
        Mode.SLOW.apply();
    }
}
`

func TestEnumsConstructorsAndInitializers(t *testing.T) {
	p := load(t, map[string]string{"app/Mode.java": modeSrc})

	mode := class(t, p, "app.Mode")
	fast := class(t, p, "app.Mode$1")
	base := class(t, p, "app.Base")
	derived := class(t, p, "app.Derived")

	assert.Equal(t, program.KindEnum, mode.Kind)
	assert.False(t, mode.IsFinal(), "an enum with constant bodies is subclassed")
	assert.Equal(t, []*program.Class{mode}, fast.Supertypes)

	fastInit := mode.Field("FAST")
	require.NotNil(t, fastInit)
	newFast := mode.Fields[0].Init.(*program.New)
	assert.Same(t, fast, newFast.Class)
	assert.Same(t, methodOf(t, mode, "Mode"), newFast.Ctor.Callee)
	assert.Same(t, mode, mode.Fields[1].Init.(*program.New).Class)

	apply := methodOf(t, fast, "apply")
	applyCalls := calls(t, p, apply)
	require.Len(t, applyCalls, 1)
	assert.Same(t, methodOf(t, mode, "tune"), applyCalls[0].Callee)

	var ctors []*program.Method
	for _, m := range derived.Methods {
		if m.IsConstructor {
			ctors = append(ctors, m)
		}
	}
	require.Len(t, ctors, 2)
	superCall := calls(t, p, ctors[0])
	require.Len(t, superCall, 1)
	assert.Same(t, methodOf(t, base, "Base"), superCall[0].Callee)
	assert.True(t, superCall[0].Receiver.(*program.This).Super)
	thisCall := calls(t, p, ctors[1])
	require.Len(t, thisCall, 1)
	assert.Same(t, ctors[0], thisCall[0].Callee)

	clinit := methodOf(t, derived, "<clinit>")
	assert.True(t, clinit.Modifiers.Has(program.ModStatic))
	clinitCalls := calls(t, p, clinit)
	require.Len(t, clinitCalls, 1)
	assert.Same(t, methodOf(t, mode, "apply"), clinitCalls[0].Callee)
}

func TestVarInferenceAndLocalClasses(t *testing.T) {
	p := load(t, map[string]string{"app/Local.java": `package app;

class Local {
    void run() {
        class Helper {
            void help() { done(); }
        }
        var h = new Helper();
        h.help();
    }

    void done() {}
}
`})

	local := class(t, p, "app.Local")
	helper := class(t, p, "app.Local.Helper")
	help := methodOf(t, helper, "help")

	helpCalls := calls(t, p, help)
	require.Len(t, helpCalls, 1)
	assert.Same(t, methodOf(t, local, "done"), helpCalls[0].Callee)

	run := methodOf(t, local, "run")
	decl := run.Body[0].(*program.VarDecl)
	assert.Same(t, helper, decl.Var.Type)
	runCalls := calls(t, p, run)
	assert.Same(t, help, runCalls[len(runCalls)-1].Callee)
}

func TestLoadedProgramFeedsCallGraph(t *testing.T) {
	p := load(t, map[string]string{
		"model/Shape.java":  shapeSrc,
		"model/Square.java": squareSrc,
		"app/Canvas.java":   canvasSrc,
	})
	draw := methodOf(t, class(t, p, "app.Canvas"), "draw")

	g, err := callgraph.Build(context.Background(), p, callgraph.Options{})
	require.NoError(t, err)

	n, ok := g.Lookup(draw)
	require.True(t, ok)
	kinds := make(map[string]callgraph.EdgeKind)
	for _, e := range n.Edges() {
		kinds[e.Callee.QualifiedName()] = e.Kind
	}
	assert.Equal(t, callgraph.TypeEvidenced, kinds["app.Circle.render"])
	assert.Equal(t, callgraph.TypeEvidenced, kinds["app.model.Square.render"])
	assert.Equal(t, callgraph.Direct, kinds["app.Canvas.helper"])
}

func TestSyntaxErrorsAreCounted(t *testing.T) {
	l := NewLoader()
	p, err := l.Load(context.Background(), []Source{
		{Path: "Ok.java", Content: []byte("class Ok { void a() {} }")},
		{Path: "Broken.java", Content: []byte("class Broken { void a( { }")},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, l.Stats().SyntaxErrors)
	assert.Equal(t, 2, l.Stats().Files)
	class(t, p, "Ok")
}

func TestLoadErrors(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoSources)

	_, err = NewLoader().LoadFiles(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoSources)

	_, err = NewLoader().LoadFiles(context.Background(), []string{filepath.Join(t.TempDir(), "Missing.java")})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorContains(t, err, "reading file")
}

func TestLoadFilesInParallel(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 40; i++ {
		body := fmt.Sprintf("package chain;\n\nclass Step%d {\n    void go() { new Step%d().go(); }\n}\n", i, i+1)
		if i == 39 {
			body = "package chain;\n\nclass Step39 {\n    void go() {}\n}\n"
		}
		path := filepath.Join(dir, fmt.Sprintf("Step%d.java", i))
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		paths = append(paths, path)
	}

	l := NewLoader(WithWorkers(3))
	p, err := l.LoadFiles(context.Background(), paths)
	require.NoError(t, err)

	assert.Len(t, p.Classes(), 40)
	assert.Zero(t, l.Stats().Unresolved)
	for i := 0; i < 39; i++ {
		goM := methodOf(t, class(t, p, fmt.Sprintf("chain.Step%d", i)), "go")
		cs := calls(t, p, goM)
		require.Len(t, cs, 2)
		assert.Same(t, methodOf(t, class(t, p, fmt.Sprintf("chain.Step%d", i+1)), "go"), cs[1].Callee)
	}
}

func TestLoadHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader().Load(ctx, []Source{{Path: "A.java", Content: []byte("class A {}")}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRepeatedLoadsReuseParsers(t *testing.T) {
	var paths []string
	root := filepath.Join("..", "..", "testdata", "java", "threads", "src", "main")
	require.NoError(t, filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && filepath.Ext(path) == ".java" {
			paths = append(paths, path)
		}
		return err
	}))
	require.Len(t, paths, 6)

	for i := 0; i < 100; i++ {
		l := NewLoader(WithWorkers(4))
		p, err := l.LoadFiles(context.Background(), paths)
		require.NoError(t, err, "load %d", i)
		assert.Zero(t, l.Stats().SyntaxErrors)
		class(t, p, "com.example.app.MainActivity")
	}
}
