// Package program defines the program model the call graph engine analyzes.
// It describes classes, methods, lambda bodies, variables and the flattened
// statements of every callable body. A host (see package javasrc) populates a
// Program and resolves its references; the analysis packages only read it.
package program

import (
	"fmt"
	"strings"
)

// Position is a source location.
type Position struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("line %d", p.Line)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// ClassKind distinguishes the flavours of type declarations.
type ClassKind int

const (
	KindClass ClassKind = iota
	KindInterface
	KindEnum
	KindAnonymous
)

func (k ClassKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindInterface:
		return "interface"
	case KindEnum:
		return "enum"
	case KindAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Modifier is a bit set of declaration modifiers.
type Modifier uint16

const (
	ModPublic Modifier = 1 << iota
	ModProtected
	ModPrivate
	ModStatic
	ModFinal
	ModAbstract
	ModDefault
)

// Has reports whether all bits of f are set.
func (m Modifier) Has(f Modifier) bool {
	return m&f == f
}

// ParseModifier maps a source keyword to its Modifier bit.
// Unknown keywords map to zero.
func ParseModifier(keyword string) Modifier {
	switch keyword {
	case "public":
		return ModPublic
	case "protected":
		return ModProtected
	case "private":
		return ModPrivate
	case "static":
		return ModStatic
	case "final":
		return ModFinal
	case "abstract":
		return ModAbstract
	case "default":
		return ModDefault
	}
	return 0
}

// Class is a class, interface, enum or anonymous class declaration.
type Class struct {
	// Name is the qualified name, e.g. "com.example.Outer.Inner".
	Name      string
	Kind      ClassKind
	Modifiers Modifier
	// SuperNames are the direct supertypes as written in source.
	SuperNames []string
	// Supertypes is the subset of SuperNames the host could resolve.
	Supertypes  []*Class
	Outer       *Class
	Methods     []*Method
	Fields      []*Field
	Annotations []string
	Pos         Position
}

// Field is a field declaration with its optional initializer.
type Field struct {
	Var  *Variable
	Init Expr
}

// SimpleName returns the last component of the qualified name.
func (c *Class) SimpleName() string {
	if i := strings.LastIndex(c.Name, "."); i >= 0 {
		return c.Name[i+1:]
	}
	return c.Name
}

func (c *Class) IsInterface() bool { return c.Kind == KindInterface }
func (c *Class) IsAnonymous() bool { return c.Kind == KindAnonymous }
func (c *Class) IsFinal() bool { return c.Modifiers.Has(ModFinal) }

// IsAbstract reports whether the class cannot be instantiated directly.
func (c *Class) IsAbstract() bool {
	return c.Kind == KindInterface || c.Modifiers.Has(ModAbstract)
}

func (c *Class) String() string { return c.Name }

// Extends records resolved direct supertypes.
func (c *Class) Extends(supers ...*Class) *Class {
	for _, s := range supers {
		if s == nil {
			continue
		}
		c.Supertypes = append(c.Supertypes, s)
		c.SuperNames = append(c.SuperNames, s.Name)
	}
	return c
}

// AddMethod attaches m to the class and returns it.
func (c *Class) AddMethod(m *Method) *Method {
	m.Class = c
	c.Methods = append(c.Methods, m)
	return m
}

// AddField attaches a field variable with an optional initializer.
func (c *Class) AddField(v *Variable, init Expr) *Variable {
	v.Field = true
	v.Class = c
	c.Fields = append(c.Fields, &Field{Var: v, Init: init})
	return v
}

// DeclaredMethod returns the method declared directly in c with the given
// name and arity, or nil.
func (c *Class) DeclaredMethod(name string, arity int) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Arity() == arity {
			return m
		}
	}
	return nil
}

// Field returns the field declared directly in c with the given name, or nil.
func (c *Class) Field(name string) *Variable {
	for _, f := range c.Fields {
		if f.Var.Name == name {
			return f.Var
		}
	}
	return nil
}

// HasAnnotation matches name against the simple or qualified annotation name.
func (c *Class) HasAnnotation(name string) bool {
	return hasAnnotation(c.Annotations, name)
}

// Ancestors returns every resolved supertype of c, nearest first.
func (c *Class) Ancestors() []*Class {
	var out []*Class
	seen := map[*Class]bool{c: true}
	queue := append([]*Class(nil), c.Supertypes...)
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		queue = append(queue, s.Supertypes...)
	}
	return out
}

// IsSubtypeOf reports whether a value of type c is assignable to t.
func (c *Class) IsSubtypeOf(t *Class) bool {
	if c == t {
		return true
	}
	for _, a := range c.Ancestors() {
		if a == t {
			return true
		}
	}
	return false
}

func hasAnnotation(annotations []string, name string) bool {
	simple := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		simple = name[i+1:]
	}
	for _, a := range annotations {
		if a == name || a == simple {
			return true
		}
		if i := strings.LastIndex(a, "."); i >= 0 && a[i+1:] == simple {
			return true
		}
	}
	return false
}

// Callable is a method or lambda body, the unit of a call graph node.
type Callable interface {
	QualifiedName() string
	Position() Position
	// DeclaringClass is the class whose source contains the body.
	DeclaringClass() *Class
	Statements() []Stmt
	isCallable()
}

// Method is a method or constructor declaration.
type Method struct {
	Name          string
	Class         *Class
	Params        []*Variable
	ReturnType    string
	Modifiers     Modifier
	IsConstructor bool
	HasBody       bool
	Annotations   []string
	Body          []Stmt
	Pos           Position
}

func (m *Method) isCallable() {}

func (m *Method) QualifiedName() string {
	if m.Class == nil {
		return m.Name
	}
	return m.Class.Name + "." + m.Name
}

func (m *Method) Position() Position { return m.Pos }
func (m *Method) DeclaringClass() *Class { return m.Class }
func (m *Method) Statements() []Stmt { return m.Body }
func (m *Method) Arity() int { return len(m.Params) }
func (m *Method) String() string { return fmt.Sprintf("%s/%d", m.QualifiedName(), m.Arity()) }
func (m *Method) HasAnnotation(n string) bool { return hasAnnotation(m.Annotations, n) }

// Signature identifies overriding-compatible methods. Parameter types are
// not compared, so same-arity overloads share a signature.
func (m *Method) Signature() string {
	return fmt.Sprintf("%s/%d", m.Name, m.Arity())
}

// IsAbstract reports whether m has no body of its own.
func (m *Method) IsAbstract() bool {
	return m.Modifiers.Has(ModAbstract) || !m.HasBody
}

// Append adds statements to the body and marks the method as having one.
func (m *Method) Append(stmts ...Stmt) *Method {
	m.HasBody = true
	m.Body = append(m.Body, stmts...)
	return m
}

// Lambda is a lambda expression body.
type Lambda struct {
	Enclosing Callable
	// Class is the declaring class of a lambda in a field initializer,
	// where Enclosing is nil.
	Class  *Class
	Params []*Variable
	Body   []Stmt
	// Ordinal numbers lambdas within their enclosing callable, from 1.
	Ordinal int
	Pos     Position
}

// NewLambda creates a lambda nested in enclosing.
func NewLambda(enclosing Callable, ordinal int, pos Position, params ...*Variable) *Lambda {
	l := &Lambda{Enclosing: enclosing, Ordinal: ordinal, Pos: pos, Params: params}
	for _, p := range params {
		p.Owner = l
	}
	return l
}

func (l *Lambda) isCallable() {}

func (l *Lambda) QualifiedName() string {
	prefix := "<field>"
	switch {
	case l.Enclosing != nil:
		prefix = l.Enclosing.QualifiedName()
	case l.Class != nil:
		prefix = l.Class.Name + ".<field>"
	}
	return fmt.Sprintf("%s$lambda$%d", prefix, l.Ordinal)
}

func (l *Lambda) Position() Position { return l.Pos }
func (l *Lambda) Statements() []Stmt { return l.Body }

func (l *Lambda) DeclaringClass() *Class {
	if l.Enclosing == nil {
		return l.Class
	}
	return l.Enclosing.DeclaringClass()
}

func (l *Lambda) String() string { return l.QualifiedName() }

// Append adds statements to the lambda body.
func (l *Lambda) Append(stmts ...Stmt) *Lambda {
	l.Body = append(l.Body, stmts...)
	return l
}

// Variable is a local variable, parameter or field.
type Variable struct {
	Name     string
	TypeName string
	// Type is the declared type when it resolves to a program class.
	Type  *Class
	Owner Callable
	Class *Class
	Field bool
	Pos   Position
}

func (v *Variable) String() string {
	if v.Field && v.Class != nil {
		return v.Class.Name + "#" + v.Name
	}
	if v.Owner != nil {
		return v.Owner.QualifiedName() + ":" + v.Name
	}
	return v.Name
}

// NewVariable creates a variable with a resolved declared type, which may be nil.
func NewVariable(name string, typ *Class) *Variable {
	v := &Variable{Name: name, Type: typ}
	if typ != nil {
		v.TypeName = typ.Name
	}
	return v
}
