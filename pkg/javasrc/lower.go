package javasrc

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-call-graph/pkg/program"
)

// scope holds the local variables visible at a point of a body.
type scope struct {
	vars   map[string]*program.Variable
	parent *scope
	// boundary marks the root scope of a class member. Variables beyond it
	// belong to an enclosing method and are only captured.
	boundary bool
}

func (s *scope) declare(v *program.Variable) {
	if s.vars == nil {
		s.vars = make(map[string]*program.Variable)
	}
	s.vars[v.Name] = v
}

func (s *scope) local(name string) *program.Variable {
	for sc := s; sc != nil; sc = sc.parent {
		if v := sc.vars[name]; v != nil {
			return v
		}
		if sc.boundary {
			break
		}
	}
	return nil
}

func (s *scope) captured(name string) *program.Variable {
	sc := s
	for sc != nil && !sc.boundary {
		sc = sc.parent
	}
	for ; sc != nil; sc = sc.parent {
		if v := sc.vars[name]; v != nil {
			return v
		}
	}
	return nil
}

func (b *builder) lower(ctx context.Context) error {
	n := len(b.decls)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.lowerDecl(b.decls[i], nil)
	}
	return nil
}

// lowerDecl lowers the field initializers and bodies of d. captured is the
// scope of the enclosing method for local and anonymous classes.
func (b *builder) lowerDecl(d *classDecl, captured *scope) {
	for _, f := range d.fields {
		if f.value == nil {
			continue
		}
		lw := b.newLowerer(d, nil, captured)
		f.field.Init = lw.expr(f.value)
	}
	for _, k := range d.constants {
		lw := b.newLowerer(d, nil, captured)
		k.field.Init = lw.enumConstant(k)
	}
	for _, md := range d.methods {
		if md.body == nil {
			continue
		}
		lw := b.newLowerer(d, md.method, captured)
		for _, p := range md.method.Params {
			lw.scope.declare(p)
		}
		lw.stmt(md.body)
		md.method.Body = lw.stmts
	}
}

// declareLocal declares classes that appear inside a body: anonymous class
// bodies and local class declarations. They are resolved and lowered at once
// so their methods can capture the enclosing scope.
func (b *builder) declareLocal(captured *scope, declare func() *classDecl) *classDecl {
	start := len(b.decls)
	d := declare()
	for _, nd := range b.decls[start:] {
		b.resolveDecl(nd)
	}
	for _, nd := range b.decls[start:] {
		b.lowerDecl(nd, captured)
	}
	return d
}

type lowerer struct {
	b     *builder
	decl  *classDecl
	owner program.Callable
	scope *scope
	stmts []program.Stmt
}

func (b *builder) newLowerer(d *classDecl, owner program.Callable, captured *scope) *lowerer {
	return &lowerer{
		b:     b,
		decl:  d,
		owner: owner,
		scope: &scope{parent: captured, boundary: true},
	}
}

func (lw *lowerer) emit(s program.Stmt) {
	lw.stmts = append(lw.stmts, s)
}

func (lw *lowerer) push() {
	lw.scope = &scope{parent: lw.scope}
}

func (lw *lowerer) pop() {
	lw.scope = lw.scope.parent
}

func (lw *lowerer) text(n *sitter.Node) string { return lw.decl.unit.text(n) }
func (lw *lowerer) pos(n *sitter.Node) program.Position { return lw.decl.unit.pos(n) }

func isStatement(kind string) bool {
	if strings.HasSuffix(kind, "_statement") {
		return true
	}
	switch kind {
	case "block", "local_variable_declaration", "explicit_constructor_invocation",
		"catch_clause", "finally_clause", "resource_specification", "resource",
		"switch_block", "switch_block_statement_group", "switch_rule":
		return true
	}
	return isTypeDecl(kind)
}

// stmt flattens a statement into the body. Control flow is dropped; nested
// statements are emitted in source order.
func (lw *lowerer) stmt(n *sitter.Node) {
	switch n.Type() {
	case "local_variable_declaration":
		lw.declareVars(n)
	case "expression_statement":
		if n.NamedChildCount() > 0 {
			lw.eval(n.NamedChild(0))
		}
	case "explicit_constructor_invocation":
		lw.emit(program.Eval(lw.constructorInvocation(n)))
	case "enhanced_for_statement":
		lw.push()
		lw.eval(n.ChildByFieldName("value"))
		v := lw.variable(n.ChildByFieldName("name"), lw.text(n.ChildByFieldName("type")))
		lw.emit(program.Declare(lw.owner, v, nil))
		if body := n.ChildByFieldName("body"); body != nil {
			lw.stmt(body)
		}
		lw.pop()
	case "catch_clause":
		lw.push()
		if p := childOfType(n, "catch_formal_parameter"); p != nil {
			typ := childOfType(p, "catch_type")
			lw.emit(program.Declare(lw.owner, lw.variable(p.ChildByFieldName("name"), lw.text(typ)), nil))
		}
		if body := n.ChildByFieldName("body"); body != nil {
			lw.stmt(body)
		}
		lw.pop()
	case "resource":
		if name := n.ChildByFieldName("name"); name != nil {
			init := lw.expr(n.ChildByFieldName("value"))
			v := lw.variable(name, lw.text(n.ChildByFieldName("type")))
			lw.inferVar(v, init)
			lw.emit(program.Declare(lw.owner, v, init))
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			lw.eval(n.NamedChild(i))
		}
	case "line_comment", "block_comment":
	default:
		if isTypeDecl(n.Type()) {
			captured := lw.scope
			lw.b.declareLocal(captured, func() *classDecl {
				return lw.b.declareType(lw.decl.unit, n, lw.decl)
			})
			return
		}
		lw.push()
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if isStatement(child.Type()) {
				lw.stmt(child)
			} else {
				lw.eval(child)
			}
		}
		lw.pop()
	}
}

// eval emits an expression evaluated for its effects.
func (lw *lowerer) eval(n *sitter.Node) {
	if n == nil {
		return
	}
	switch x := lw.expr(n).(type) {
	case nil:
	case *program.Assign:
		lw.emit(x)
	default:
		lw.emit(program.Eval(x))
	}
}

func (lw *lowerer) variable(name *sitter.Node, typ string) *program.Variable {
	v := &program.Variable{
		Name:     lw.text(name),
		TypeName: typ,
		Owner:    lw.owner,
		Pos:      lw.pos(name),
	}
	v.Type = lw.b.resolveType(typ, lw.decl)
	lw.scope.declare(v)
	return v
}

// inferVar types a `var` declaration from its initializer.
func (lw *lowerer) inferVar(v *program.Variable, init program.Expr) {
	if v.TypeName == "var" && v.Type == nil {
		v.Type = lw.staticType(init)
	}
}

func (lw *lowerer) declareVars(n *sitter.Node) {
	typ := lw.text(n.ChildByFieldName("type"))
	for i := 0; i < int(n.NamedChildCount()); i++ {
		d := n.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		var init program.Expr
		if value := d.ChildByFieldName("value"); value != nil {
			init = lw.expr(value)
		}
		v := lw.variable(d.ChildByFieldName("name"), typ+dimensions(d))
		lw.inferVar(v, init)
		lw.emit(program.Declare(lw.owner, v, init))
	}
}

// expr lowers an expression. It returns nil for expressions that neither
// call, create, nor name anything the analyses track.
func (lw *lowerer) expr(n *sitter.Node) program.Expr {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "method_invocation":
		return lw.call(n)
	case "object_creation_expression":
		return lw.newExpr(n)
	case "lambda_expression":
		return lw.lambda(n)
	case "method_reference":
		return lw.methodRef(n)
	case "assignment_expression":
		left := lw.expr(n.ChildByFieldName("left"))
		right := lw.expr(n.ChildByFieldName("right"))
		if lw.text(n.ChildByFieldName("operator")) == "=" {
			return &program.Assign{Target: left, Value: right, Pos: lw.pos(n)}
		}
		return compound(left, right)
	case "identifier":
		return lw.name(lw.text(n))
	case "field_access":
		return lw.fieldAccess(n)
	case "this":
		return &program.This{Class: lw.decl.class}
	case "super":
		return &program.This{Class: lw.decl.class, Super: true}
	case "cast_expression":
		return lw.expr(n.ChildByFieldName("value"))
	case "parenthesized_expression":
		if n.NamedChildCount() == 1 {
			return lw.expr(n.NamedChild(0))
		}
	}

	var parts []program.Expr
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if isStatement(child.Type()) {
			lw.stmt(child)
			continue
		}
		if x := lw.expr(child); x != nil {
			parts = append(parts, x)
		}
	}
	return compound(parts...)
}

func compound(parts ...program.Expr) program.Expr {
	var kept []program.Expr
	for _, p := range parts {
		if p != nil {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &program.Compound{Parts: kept}
}

// name resolves a bare identifier: locals, then fields of the enclosing
// classes, then captured locals, then type names.
func (lw *lowerer) name(name string) program.Expr {
	if v := lw.scope.local(name); v != nil {
		return program.Ref(v)
	}
	for c := lw.decl.class; c != nil; c = c.Outer {
		if f := findField(c, name); f != nil {
			return program.Ref(f)
		}
	}
	if v := lw.scope.captured(name); v != nil {
		return program.Ref(v)
	}
	if c := lw.b.resolveType(name, lw.decl); c != nil {
		return &program.TypeRef{Name: name, Class: c}
	}
	return nil
}

func (lw *lowerer) fieldAccess(n *sitter.Node) program.Expr {
	objNode := n.ChildByFieldName("object")
	fieldNode := n.ChildByFieldName("field")
	name := lw.text(fieldNode)

	if fieldNode != nil && fieldNode.Type() == "this" {
		// Outer.this
		return &program.This{Class: lw.b.resolveType(lw.text(objNode), lw.decl)}
	}

	obj := lw.expr(objNode)
	if t := lw.staticType(obj); t != nil {
		if f := findField(t, name); f != nil {
			switch obj.(type) {
			case *program.VarRef, *program.This, *program.TypeRef:
				return program.Ref(f)
			}
			return compound(obj, program.Ref(f))
		}
	}

	if ref, ok := obj.(*program.TypeRef); obj == nil || ok {
		if c := lw.b.resolveType(lw.text(n), lw.decl); c != nil {
			return &program.TypeRef{Name: lw.text(n), Class: c}
		}
		if ok && ref.Class != nil {
			return nil
		}
	}
	return compound(obj)
}

// staticType is the declared type of an expression, when it is a program
// class.
func (lw *lowerer) staticType(x program.Expr) *program.Class {
	switch x := x.(type) {
	case *program.VarRef:
		return x.Var.Type
	case *program.This:
		if x.Super {
			return superclass(x.Class)
		}
		return x.Class
	case *program.TypeRef:
		return x.Class
	case *program.New:
		return x.Class
	case *program.Call:
		if x.Callee == nil {
			return nil
		}
		return lw.b.returnType(x.Callee)
	case *program.Assign:
		return lw.staticType(x.Target)
	case *program.Compound:
		return lw.staticType(x.Parts[len(x.Parts)-1])
	}
	return nil
}

func (lw *lowerer) args(n *sitter.Node) []program.Expr {
	if n == nil {
		return nil
	}
	out := make([]program.Expr, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "line_comment" || child.Type() == "block_comment" {
			continue
		}
		x := lw.expr(child)
		if x == nil {
			x = &program.Compound{}
		}
		out = append(out, x)
	}
	return out
}

func (lw *lowerer) call(n *sitter.Node) program.Expr {
	call := &program.Call{
		Name: lw.text(n.ChildByFieldName("name")),
		Args: lw.args(n.ChildByFieldName("arguments")),
		Pos:  lw.pos(n),
	}
	arity := len(call.Args)

	switch objNode := n.ChildByFieldName("object"); {
	case objNode == nil:
		for c := lw.decl.class; c != nil && call.Callee == nil; c = c.Outer {
			call.Callee = findMethod(c, call.Name, arity)
		}
	case objNode.Type() == "super":
		call.Receiver = &program.This{Class: lw.decl.class, Super: true}
		for _, s := range lw.decl.class.Supertypes {
			if call.Callee = findMethod(s, call.Name, arity); call.Callee != nil {
				break
			}
		}
	default:
		call.Receiver = lw.expr(objNode)
		if t := lw.staticType(call.Receiver); t != nil {
			call.Callee = findMethod(t, call.Name, arity)
		}
	}

	if call.Callee == nil {
		lw.b.unresolved++
	}
	return call
}

// constructorInvocation lowers this(...) and super(...) in a constructor.
func (lw *lowerer) constructorInvocation(n *sitter.Node) *program.Call {
	class := lw.decl.class
	call := &program.Call{
		Receiver: &program.This{Class: class},
		Name:     "<init>",
		Args:     lw.args(n.ChildByFieldName("arguments")),
		Pos:      lw.pos(n),
	}
	target := class
	if ctor := n.ChildByFieldName("constructor"); ctor != nil && ctor.Type() == "super" {
		call.Receiver = &program.This{Class: class, Super: true}
		target = superclass(class)
	}
	if target != nil {
		call.Callee = findConstructor(target, len(call.Args))
	}
	return call
}

func (lw *lowerer) newExpr(n *sitter.Node) program.Expr {
	written := lw.text(n.ChildByFieldName("type"))
	class := lw.b.resolveType(written, lw.decl)
	x := &program.New{
		TypeName: written,
		Class:    class,
		Ctor: &program.Call{
			Name: "<init>",
			Args: lw.args(n.ChildByFieldName("arguments")),
			Pos:  lw.pos(n),
		},
	}
	if class != nil {
		x.Ctor.Callee = findConstructor(class, len(x.Ctor.Args))
	}
	if body := childOfType(n, "class_body"); body != nil {
		x.Class = lw.anonymous(written, class, body, n)
	}
	return x
}

func (lw *lowerer) enumConstant(k constantDecl) program.Expr {
	enum := lw.decl.class
	args := lw.args(k.args)
	x := &program.New{
		TypeName: enum.Name,
		Class:    enum,
		Ctor: &program.Call{
			Name:   "<init>",
			Args:   args,
			Callee: findConstructor(enum, len(args)),
			Pos:    k.field.Var.Pos,
		},
	}
	if k.body != nil {
		x.Class = lw.anonymous(enum.Name, enum, k.body, k.body)
	}
	return x
}

// anonymous declares the class of an instance creation with a body.
func (lw *lowerer) anonymous(written string, super *program.Class, body, at *sitter.Node) *program.Class {
	outer := lw.decl.class
	lw.b.anonSeq[outer]++
	lw.b.anonymous++

	c := &program.Class{
		Name:       fmt.Sprintf("%s$%d", outer.Name, lw.b.anonSeq[outer]),
		Kind:       program.KindAnonymous,
		Outer:      outer,
		SuperNames: []string{written},
		Pos:        lw.pos(at),
	}
	if super != nil {
		c.Supertypes = []*program.Class{super}
	}

	d := lw.b.declareLocal(lw.scope, func() *classDecl {
		d := &classDecl{class: c, unit: lw.decl.unit}
		lw.b.addDecl(d)
		lw.b.declareMembers(d, body)
		return d
	})
	return d.class
}

func (lw *lowerer) lambda(n *sitter.Node) program.Expr {
	l := &program.Lambda{Enclosing: lw.owner, Pos: lw.pos(n)}
	if lw.owner != nil {
		lw.b.lambdaSeq[lw.owner]++
		l.Ordinal = lw.b.lambdaSeq[lw.owner]
	} else {
		l.Class = lw.decl.class
		lw.b.fieldLambdaSeq[l.Class]++
		l.Ordinal = lw.b.fieldLambdaSeq[l.Class]
	}
	lw.b.lambdas++

	inner := &lowerer{b: lw.b, decl: lw.decl, owner: l, scope: &scope{parent: lw.scope}}

	switch p := n.ChildByFieldName("parameters"); {
	case p == nil:
	case p.Type() == "identifier":
		l.Params = []*program.Variable{{Name: lw.text(p), Pos: lw.pos(p)}}
	default:
		l.Params = params(lw.decl.unit, p)
	}
	for _, p := range l.Params {
		p.Owner = l
		p.Type = lw.b.resolveType(p.TypeName, lw.decl)
		inner.scope.declare(p)
	}

	switch body := n.ChildByFieldName("body"); {
	case body == nil:
	case body.Type() == "block":
		inner.stmt(body)
	default:
		inner.eval(body)
	}
	l.Body = inner.stmts
	return &program.LambdaExpr{Lambda: l}
}

func (lw *lowerer) methodRef(n *sitter.Node) program.Expr {
	ref := &program.MethodRef{Text: lw.text(n), Pos: lw.pos(n)}
	if n.NamedChildCount() == 0 || n.ChildCount() == 0 {
		return ref
	}
	left := n.NamedChild(0)
	name := lw.text(n.Child(int(n.ChildCount()) - 1))

	var class *program.Class
	switch left.Type() {
	case "this":
		class = lw.decl.class
	case "super":
		class = superclass(lw.decl.class)
	default:
		x := lw.expr(left)
		if call, ok := x.(*program.Call); ok {
			lw.emit(program.Eval(call))
		}
		if class = lw.staticType(x); class == nil {
			class = lw.b.resolveType(lw.text(left), lw.decl)
		}
	}

	if class != nil {
		if name == "new" {
			ref.Target = findConstructor(class, -1)
		} else {
			ref.Target = findMethodByName(class, name)
		}
	}
	return ref
}
