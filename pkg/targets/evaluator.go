package targets

import (
	"fmt"

	"github.com/l3aro/go-call-graph/pkg/program"
	"github.com/l3aro/go-call-graph/pkg/typeeval"
)

// Evaluator records, per variable, every receiver ever assigned to it.
// Receivers accumulate; a later assignment never replaces an earlier one.
type Evaluator struct {
	model     program.Model
	strict    bool
	receivers map[*program.Variable][]Receiver
	err       error
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithStrictTypes reports constructor calls without a resolvable type as
// typeeval.ErrUnresolvedConstructor instead of skipping them.
func WithStrictTypes(strict bool) Option {
	return func(e *Evaluator) {
		e.strict = strict
	}
}

// New creates an evaluator with no tracked receivers.
func New(model program.Model, opts ...Option) *Evaluator {
	e := &Evaluator{
		model:     model,
		receivers: make(map[*program.Variable][]Receiver),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Receivers returns the receivers tracked for v in assignment order.
func (e *Evaluator) Receivers(v *program.Variable) []Receiver {
	return e.receivers[v]
}

// Err returns the first strict-mode failure seen during traversal.
func (e *Evaluator) Err() error {
	return e.err
}

// Track records the receiver value denotes, if any, for v.
func (e *Evaluator) Track(v *program.Variable, value program.Expr) {
	if v == nil {
		return
	}
	var r Receiver
	switch x := value.(type) {
	case *program.New:
		c, ok := e.model.ConstructedType(x)
		if !ok {
			if e.strict && e.err == nil {
				e.err = fmt.Errorf("%w: new %s assigned to %s", typeeval.ErrUnresolvedConstructor, x.TypeName, v)
			}
			return
		}
		r = ClassReceiver{Class: c}
	case *program.LambdaExpr:
		r = LambdaReceiver{Lambda: x.Lambda}
	case *program.MethodRef:
		r = ReferenceReceiver{Ref: x}
	default:
		return
	}
	for _, existing := range e.receivers[v] {
		if existing == r {
			return
		}
	}
	e.receivers[v] = append(e.receivers[v], r)
}

// Get returns the callables a functional call may reach: a call through a
// variable whose declared type is a functional interface, invoking that
// interface's single abstract method. Any other call yields nothing.
func (e *Evaluator) Get(call *program.Call) []Target {
	v, sam, ok := e.functionalCall(call)
	if !ok {
		return nil
	}

	var out []Target
	seen := make(map[program.Callable]bool)
	add := func(t Target) {
		if !seen[t.Callable()] {
			seen[t.Callable()] = true
			out = append(out, t)
		}
	}

	for _, r := range e.receivers[v] {
		switch r := r.(type) {
		case ClassReceiver:
			if m, ok := e.model.FindOverrideIn(r.Class, sam); ok {
				add(MethodTarget{Method: m})
			}
		case LambdaReceiver:
			add(LambdaTarget{Lambda: r.Lambda})
		case ReferenceReceiver:
			if m, ok := e.model.ResolveReference(r.Ref); ok {
				add(MethodTarget{Method: m})
			}
		}
	}
	return out
}

// IsFunctionalCall reports whether call goes through a functional
// interface variable to its single abstract method.
func (e *Evaluator) IsFunctionalCall(call *program.Call) bool {
	_, _, ok := e.functionalCall(call)
	return ok
}

func (e *Evaluator) functionalCall(call *program.Call) (*program.Variable, *program.Method, bool) {
	if call == nil {
		return nil, nil, false
	}
	ref, ok := call.Receiver.(*program.VarRef)
	if !ok || ref.Var == nil || ref.Var.Type == nil {
		return nil, nil, false
	}
	callee, ok := e.model.ResolveCallee(call)
	if !ok {
		return nil, nil, false
	}
	sam, ok := e.model.SingleAbstractMethod(ref.Var.Type)
	if !ok || sam.Signature() != callee.Signature() || !callee.IsAbstract() {
		return nil, nil, false
	}
	return ref.Var, sam, true
}

type visitor struct {
	program.BaseVisitor
	e *Evaluator
}

func (v visitor) VisitVarInit(variable *program.Variable, init program.Expr, _ program.Callable) {
	v.e.Track(variable, init)
}

func (v visitor) VisitAssign(a *program.Assign, _ program.Callable) {
	if ref, ok := a.Target.(*program.VarRef); ok {
		v.e.Track(ref.Var, a.Value)
	}
}

// Visitor returns a program.Visitor feeding e, for sharing a traversal.
func (e *Evaluator) Visitor() program.Visitor {
	return visitor{e: e}
}
