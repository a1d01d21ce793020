package targets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-call-graph/pkg/program"
	"github.com/l3aro/go-call-graph/pkg/typeeval"
)

type fixture struct {
	p        *program.Program
	runnable *program.Class
	runM     *program.Method
	task     *program.Class
	taskRun  *program.Method
	host     *program.Method
}

func newFixture() *fixture {
	p := program.NewProgram()
	runnable := p.AddClass(&program.Class{Name: "Runnable", Kind: program.KindInterface})
	runM := runnable.AddMethod(&program.Method{Name: "run", Modifiers: program.ModAbstract})
	task := p.AddClass((&program.Class{Name: "Task"}).Extends(runnable))
	taskRun := task.AddMethod((&program.Method{Name: "run"}).Append())
	app := p.AddClass(&program.Class{Name: "App"})
	host := app.AddMethod(&program.Method{Name: "start"})
	return &fixture{p: p, runnable: runnable, runM: runM, task: task, taskRun: taskRun, host: host}
}

func (f *fixture) evaluate(t *testing.T, opts ...Option) *Evaluator {
	t.Helper()
	e := New(f.p, opts...)
	require.NoError(t, program.Walk(context.Background(), f.p, e.Visitor()))
	return e
}

func TestLambdaReceiverIsTheOnlyTarget(t *testing.T) {
	f := newFixture()
	r := program.NewVariable("r", f.runnable)
	lambda := program.NewLambda(f.host, 1, program.Position{})
	call := program.Invoke(program.Ref(r), f.runM)
	f.host.Append(
		program.Declare(f.host, r, &program.LambdaExpr{Lambda: lambda}),
		program.Eval(call),
	)

	e := f.evaluate(t)

	got := e.Get(call)
	require.Len(t, got, 1)
	assert.Equal(t, LambdaTarget{Lambda: lambda}, got[0])
	assert.Equal(t, program.Callable(lambda), got[0].Callable())
}

func TestReceiversAccumulate(t *testing.T) {
	f := newFixture()
	helper := f.host.Class.AddMethod((&program.Method{Name: "tick"}).Append())
	r := program.NewVariable("r", f.runnable)
	lambda := program.NewLambda(f.host, 1, program.Position{})
	ref := &program.MethodRef{Text: "App::tick", Target: helper}
	call := program.Invoke(program.Ref(r), f.runM)
	f.host.Append(
		program.Declare(f.host, r, program.Instantiate(f.task, nil)),
		program.AssignTo(r, &program.LambdaExpr{Lambda: lambda}),
		program.AssignTo(r, ref),
		program.AssignTo(r, program.Instantiate(f.task, nil)),
		program.Eval(call),
	)

	e := f.evaluate(t)

	assert.Len(t, e.Receivers(r), 3)
	assert.Equal(t, []Target{
		MethodTarget{Method: f.taskRun},
		LambdaTarget{Lambda: lambda},
		MethodTarget{Method: helper},
	}, e.Get(call))
}

func TestNonFunctionalCallsYieldNothing(t *testing.T) {
	f := newFixture()
	cancel := f.task.AddMethod((&program.Method{Name: "cancel"}).Append())

	viaClass := program.NewVariable("t", f.task)
	untyped := program.NewVariable("u", nil)
	classCall := program.Invoke(program.Ref(viaClass), f.taskRun)
	cancelCall := program.Invoke(program.Ref(viaClass), cancel)
	untypedCall := program.Invoke(program.Ref(untyped), f.runM)
	unqualified := program.Invoke(nil, f.runM)
	unresolved := &program.Call{Receiver: program.Ref(viaClass), Name: "missing"}

	f.host.Append(
		program.Declare(f.host, viaClass, program.Instantiate(f.task, nil)),
		program.Declare(f.host, untyped, program.Instantiate(f.task, nil)),
		program.Eval(classCall),
		program.Eval(cancelCall),
		program.Eval(untypedCall),
		program.Eval(unqualified),
		program.Eval(unresolved),
	)

	e := f.evaluate(t)

	for _, call := range []*program.Call{classCall, cancelCall, untypedCall, unqualified, unresolved} {
		assert.Empty(t, e.Get(call))
		assert.False(t, e.IsFunctionalCall(call))
	}
}

func TestUnresolvedConstructorReceiver(t *testing.T) {
	f := newFixture()
	r := program.NewVariable("r", f.runnable)
	f.host.Append(program.Declare(f.host, r, &program.New{TypeName: "Missing"}))

	lenient := f.evaluate(t)
	assert.Empty(t, lenient.Receivers(r))
	assert.NoError(t, lenient.Err())

	strict := f.evaluate(t, WithStrictTypes(true))
	assert.ErrorIs(t, strict.Err(), typeeval.ErrUnresolvedConstructor)
}
