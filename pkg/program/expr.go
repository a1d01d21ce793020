package program

// Stmt is a statement of a flattened callable body. Control flow is dropped:
// the analyses are flow-insensitive, so branches and loops contribute their
// statements in source order.
type Stmt interface {
	isStmt()
}

// Expr is an expression. Only the shapes the analyses inspect are modelled;
// everything else is a Compound holding its nested expressions.
type Expr interface {
	isExpr()
}

// VarDecl declares a variable with an optional initializer.
type VarDecl struct {
	Var  *Variable
	Init Expr
}

// ExprStmt evaluates an expression for its effects.
type ExprStmt struct {
	X Expr
}

// Assign is a simple assignment. It is both a statement and an expression.
type Assign struct {
	Target Expr
	Value  Expr
	Pos    Position
}

// VarRef reads a variable.
type VarRef struct {
	Var *Variable
}

// This is the implicit or explicit receiver of the enclosing class.
// Super marks a super.m() receiver.
type This struct {
	Class *Class
	Super bool
}

// TypeRef names a type used as the receiver of a static call.
type TypeRef struct {
	Name  string
	Class *Class
}

// Call is a method invocation or the constructor part of a New.
type Call struct {
	// Receiver is nil for unqualified calls.
	Receiver Expr
	Name     string
	Args     []Expr
	// Callee is the statically declared target, nil when unresolved.
	Callee *Method
	Pos    Position
}

// New is an instance creation expression.
type New struct {
	TypeName string
	// Class is the constructed type: the named class or, when the
	// expression has a body, the anonymous class. Nil when unresolved.
	Class *Class
	// Ctor is the constructor invocation. Its Callee is nil when the class
	// relies on an implicit constructor.
	Ctor *Call
}

// LambdaExpr is a lambda literal.
type LambdaExpr struct {
	Lambda *Lambda
}

// MethodRef is a method reference such as Foo::bar or Foo::new.
type MethodRef struct {
	Text string
	// Target is the referenced method, nil when unresolved.
	Target *Method
	Pos    Position
}

// Compound is any other expression.
type Compound struct {
	Parts []Expr
}

func (*VarDecl) isStmt() {}
func (*ExprStmt) isStmt() {}
func (*Assign) isStmt() {}

func (*Assign) isExpr() {}
func (*VarRef) isExpr() {}
func (*This) isExpr() {}
func (*TypeRef) isExpr() {}
func (*Call) isExpr() {}
func (*New) isExpr() {}
func (*LambdaExpr) isExpr() {}
func (*MethodRef) isExpr() {}
func (*Compound) isExpr() {}

// Eval wraps an expression as a statement.
func Eval(x Expr) Stmt {
	return &ExprStmt{X: x}
}

// Declare builds a declaration statement and sets the variable's owner.
func Declare(owner Callable, v *Variable, init Expr) Stmt {
	v.Owner = owner
	return &VarDecl{Var: v, Init: init}
}

// AssignTo builds a simple assignment to a variable.
func AssignTo(v *Variable, value Expr) *Assign {
	return &Assign{Target: &VarRef{Var: v}, Value: value}
}

// Invoke builds a call on receiver, which may be nil.
func Invoke(receiver Expr, callee *Method, args ...Expr) *Call {
	c := &Call{Receiver: receiver, Callee: callee, Args: args}
	if callee != nil {
		c.Name = callee.Name
	}
	return c
}

// Instantiate builds a New of class using ctor, which may be nil.
func Instantiate(class *Class, ctor *Method, args ...Expr) *New {
	n := &New{Class: class, Ctor: &Call{Name: "<init>", Callee: ctor, Args: args}}
	if class != nil {
		n.TypeName = class.Name
	}
	return n
}

// Ref reads v.
func Ref(v *Variable) *VarRef {
	return &VarRef{Var: v}
}
