package program

import "context"

// Visitor receives program elements during Walk. Embed BaseVisitor to
// implement only the callbacks you need.
type Visitor interface {
	VisitClass(c *Class)
	VisitMethod(m *Method)
	VisitLambda(l *Lambda)
	// VisitVarInit is called for declarations with an initializer. in is
	// nil for field initializers.
	VisitVarInit(v *Variable, init Expr, in Callable)
	VisitAssign(a *Assign, in Callable)
	// VisitCall is called for method invocations and for the constructor
	// part of instance creations. in is nil outside any callable body.
	VisitCall(call *Call, in Callable)
}

// BaseVisitor ignores everything.
type BaseVisitor struct{}

func (BaseVisitor) VisitClass(*Class) {}
func (BaseVisitor) VisitMethod(*Method) {}
func (BaseVisitor) VisitLambda(*Lambda) {}
func (BaseVisitor) VisitVarInit(*Variable, Expr, Callable) {}
func (BaseVisitor) VisitAssign(*Assign, Callable) {}
func (BaseVisitor) VisitCall(*Call, Callable) {}

// Walk traverses every class of the model in enumeration order: fields
// first, then methods, descending into lambda bodies where they occur.
// Cancellation is checked once per class.
func Walk(ctx context.Context, m Model, v Visitor) error {
	w := walker{v: v}
	for _, c := range m.Classes() {
		if err := ctx.Err(); err != nil {
			return err
		}
		v.VisitClass(c)
		for _, f := range c.Fields {
			w.expr(f.Init, nil)
			if f.Init != nil {
				v.VisitVarInit(f.Var, f.Init, nil)
			}
		}
		for _, method := range c.Methods {
			v.VisitMethod(method)
			w.stmts(method.Body, method)
		}
	}
	return nil
}

type walker struct {
	v Visitor
}

func (w walker) stmts(stmts []Stmt, in Callable) {
	for _, s := range stmts {
		switch s := s.(type) {
		case *VarDecl:
			w.expr(s.Init, in)
			if s.Init != nil {
				w.v.VisitVarInit(s.Var, s.Init, in)
			}
		case *ExprStmt:
			w.expr(s.X, in)
		case *Assign:
			w.expr(s, in)
		}
	}
}

func (w walker) expr(e Expr, in Callable) {
	switch e := e.(type) {
	case nil:
	case *Call:
		w.expr(e.Receiver, in)
		for _, a := range e.Args {
			w.expr(a, in)
		}
		w.v.VisitCall(e, in)
	case *New:
		if e.Ctor != nil {
			for _, a := range e.Ctor.Args {
				w.expr(a, in)
			}
			w.v.VisitCall(e.Ctor, in)
		}
	case *LambdaExpr:
		w.v.VisitLambda(e.Lambda)
		w.stmts(e.Lambda.Body, e.Lambda)
	case *Assign:
		w.expr(e.Target, in)
		w.expr(e.Value, in)
		w.v.VisitAssign(e, in)
	case *Compound:
		for _, p := range e.Parts {
			w.expr(p, in)
		}
	}
}

// Multi fans every callback out to vs in order, so several analyses can
// share one traversal.
func Multi(vs ...Visitor) Visitor {
	return multi(vs)
}

type multi []Visitor

func (m multi) VisitClass(c *Class) {
	for _, v := range m {
		v.VisitClass(c)
	}
}

func (m multi) VisitMethod(method *Method) {
	for _, v := range m {
		v.VisitMethod(method)
	}
}

func (m multi) VisitLambda(l *Lambda) {
	for _, v := range m {
		v.VisitLambda(l)
	}
}

func (m multi) VisitVarInit(variable *Variable, init Expr, in Callable) {
	for _, v := range m {
		v.VisitVarInit(variable, init, in)
	}
}

func (m multi) VisitAssign(a *Assign, in Callable) {
	for _, v := range m {
		v.VisitAssign(a, in)
	}
}

func (m multi) VisitCall(call *Call, in Callable) {
	for _, v := range m {
		v.VisitCall(call, in)
	}
}
