package typeeval

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-call-graph/pkg/program"
)

// ErrUnresolvedConstructor reports an instance creation whose type the
// model could not determine. It is only returned in strict mode.
var ErrUnresolvedConstructor = errors.New("constructor call has no resolvable type")

// Evaluator accumulates a type estimate per variable from every
// initializer and simple assignment whose value is an instance creation.
// Estimates only grow; traversal order does not change the final value.
type Evaluator struct {
	model     program.Model
	strict    bool
	estimates map[*program.Variable]Estimate
	err       error
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithStrictTypes turns unresolvable instance creations into
// ErrUnresolvedConstructor instead of skipping them.
func WithStrictTypes(strict bool) Option {
	return func(e *Evaluator) {
		e.strict = strict
	}
}

// New creates an evaluator with no estimates.
func New(model program.Model, opts ...Option) *Evaluator {
	e := &Evaluator{
		model:     model,
		estimates: make(map[*program.Variable]Estimate),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get returns the estimate for v, Bottom if v never received an instance.
func (e *Evaluator) Get(v *program.Variable) Estimate {
	return e.estimates[v]
}

// Len returns the number of variables with a non-bottom estimate.
func (e *Evaluator) Len() int {
	return len(e.estimates)
}

// Err returns the first strict-mode failure seen during traversal.
func (e *Evaluator) Err() error {
	return e.err
}

// VarInit folds a declaration initializer into the estimate of v.
func (e *Evaluator) VarInit(v *program.Variable, init program.Expr) {
	e.fold(v, init)
}

// Assign folds a simple assignment into the estimate of its target.
// Assignments to anything but a plain variable are ignored.
func (e *Evaluator) Assign(a *program.Assign) {
	ref, ok := a.Target.(*program.VarRef)
	if !ok || ref.Var == nil {
		return
	}
	e.fold(ref.Var, a.Value)
}

func (e *Evaluator) fold(v *program.Variable, value program.Expr) {
	n, ok := value.(*program.New)
	if !ok || v == nil {
		return
	}
	typ, ok := e.model.ConstructedType(n)
	if !ok {
		if e.strict && e.err == nil {
			e.err = fmt.Errorf("%w: new %s assigned to %s", ErrUnresolvedConstructor, n.TypeName, v)
		}
		return
	}
	e.estimates[v] = e.estimates[v].Join(Of(typ, Exact))
}

// visitor adapts an Evaluator to program.Walk.
type visitor struct {
	program.BaseVisitor
	e *Evaluator
}

func (v visitor) VisitVarInit(variable *program.Variable, init program.Expr, _ program.Callable) {
	v.e.VarInit(variable, init)
}

func (v visitor) VisitAssign(a *program.Assign, _ program.Callable) {
	v.e.Assign(a)
}

// Visitor returns a program.Visitor feeding e, for sharing a traversal.
func (e *Evaluator) Visitor() program.Visitor {
	return visitor{e: e}
}
