package javasrc

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-call-graph/pkg/program"
)

// classDecl ties a program class to the syntax it was declared from.
type classDecl struct {
	class     *program.Class
	unit      *unit
	methods   []methodDecl
	fields    []fieldDecl
	constants []constantDecl
}

type methodDecl struct {
	method *program.Method
	body   *sitter.Node
}

type fieldDecl struct {
	field *program.Field
	value *sitter.Node
}

type constantDecl struct {
	field *program.Field
	args  *sitter.Node
	body  *sitter.Node
}

// builder runs the declaration, resolution and lowering passes.
type builder struct {
	units   []*unit
	prog    *program.Program
	decls   []*classDecl
	byClass map[*program.Class]*classDecl

	anonSeq        map[*program.Class]int
	lambdaSeq      map[program.Callable]int
	fieldLambdaSeq map[*program.Class]int
	returnTypes    map[*program.Method]*program.Class

	anonymous  int
	lambdas    int
	unresolved int
}

func newBuilder(units []*unit) *builder {
	return &builder{
		units:          units,
		prog:           program.NewProgram(),
		byClass:        make(map[*program.Class]*classDecl),
		anonSeq:        make(map[*program.Class]int),
		lambdaSeq:      make(map[program.Callable]int),
		fieldLambdaSeq: make(map[*program.Class]int),
		returnTypes:    make(map[*program.Method]*program.Class),
	}
}

func isTypeDecl(kind string) bool {
	switch kind {
	case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
		return true
	}
	return false
}

func (b *builder) declare() {
	for _, u := range b.units {
		for i := 0; i < int(u.root.NamedChildCount()); i++ {
			child := u.root.NamedChild(i)
			switch child.Type() {
			case "package_declaration":
				u.pkg = packageName(u, child)
			case "import_declaration":
				u.addImport(child)
			default:
				if isTypeDecl(child.Type()) {
					b.declareType(u, child, nil)
				}
			}
		}
	}
}

func packageName(u *unit, n *sitter.Node) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "identifier", "scoped_identifier":
			return u.text(child)
		}
	}
	return ""
}

// addImport records single-type and on-demand imports. Static imports name
// members, not types, and are skipped.
func (u *unit) addImport(n *sitter.Node) {
	var name string
	wildcard := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "static":
			return
		case "identifier", "scoped_identifier":
			name = u.text(child)
		case "asterisk":
			wildcard = true
		}
	}
	switch {
	case name == "":
	case wildcard:
		u.wildcard = append(u.wildcard, name)
	default:
		u.imports = append(u.imports, name)
	}
}

func (b *builder) addDecl(d *classDecl) {
	b.prog.AddClass(d.class)
	b.decls = append(b.decls, d)
	b.byClass[d.class] = d
}

// declareType declares a named type and everything nested in it.
func (b *builder) declareType(u *unit, n *sitter.Node, outer *classDecl) *classDecl {
	name := u.text(n.ChildByFieldName("name"))
	switch {
	case outer != nil:
		name = outer.class.Name + "." + name
	case u.pkg != "":
		name = u.pkg + "." + name
	}

	c := &program.Class{Name: name, Pos: u.pos(n)}
	if outer != nil {
		c.Outer = outer.class
	}
	c.Modifiers, c.Annotations = modifiers(u, n)

	switch n.Type() {
	case "interface_declaration":
		c.Kind = program.KindInterface
	case "enum_declaration":
		c.Kind = program.KindEnum
	case "record_declaration":
		c.Modifiers |= program.ModFinal
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "superclass", "super_interfaces", "extends_interfaces":
			c.SuperNames = append(c.SuperNames, typeNames(u, child)...)
		}
	}

	d := &classDecl{class: c, unit: u}
	b.addDecl(d)

	if n.Type() == "record_declaration" {
		for _, v := range params(u, n.ChildByFieldName("parameters")) {
			c.AddField(v, nil)
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		b.declareMembers(d, body)
	}

	if c.Kind == program.KindEnum && !hasConstantBodies(d) {
		c.Modifiers |= program.ModFinal
	}
	return d
}

func hasConstantBodies(d *classDecl) bool {
	for _, k := range d.constants {
		if k.body != nil {
			return true
		}
	}
	return false
}

func typeNames(u *unit, n *sitter.Node) []string {
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "type_list" {
			out = append(out, typeNames(u, child)...)
			continue
		}
		out = append(out, u.text(child))
	}
	return out
}

// modifiers reads the modifier keywords and annotation names of a declaration.
func modifiers(u *unit, n *sitter.Node) (program.Modifier, []string) {
	var mods program.Modifier
	var annotations []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		m := n.NamedChild(i)
		if m.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(m.ChildCount()); j++ {
			child := m.Child(j)
			switch child.Type() {
			case "marker_annotation", "annotation":
				annotations = append(annotations, u.text(child.ChildByFieldName("name")))
			default:
				mods |= program.ParseModifier(child.Type())
			}
		}
	}
	return mods, annotations
}

func (b *builder) declareMembers(d *classDecl, body *sitter.Node) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		m := body.NamedChild(i)
		switch m.Type() {
		case "field_declaration", "constant_declaration":
			b.declareField(d, m)
		case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
			b.declareMethod(d, m)
		case "static_initializer":
			if m.NamedChildCount() > 0 {
				b.declareInitializer(d, m, m.NamedChild(int(m.NamedChildCount())-1), "<clinit>", program.ModStatic)
			}
		case "block":
			b.declareInitializer(d, m, m, "<instinit>", 0)
		case "enum_constant":
			b.declareConstant(d, m)
		case "enum_body_declarations":
			b.declareMembers(d, m)
		default:
			if isTypeDecl(m.Type()) {
				b.declareType(d.unit, m, d)
			}
		}
	}
}

func (b *builder) declareMethod(d *classDecl, n *sitter.Node) {
	u := d.unit
	m := &program.Method{Name: u.text(n.ChildByFieldName("name")), Pos: u.pos(n)}
	m.Modifiers, m.Annotations = modifiers(u, n)

	switch n.Type() {
	case "method_declaration":
		m.ReturnType = u.text(n.ChildByFieldName("type"))
		m.Params = params(u, n.ChildByFieldName("parameters"))
	case "constructor_declaration":
		m.IsConstructor = true
		m.Params = params(u, n.ChildByFieldName("parameters"))
	case "compact_constructor_declaration":
		m.IsConstructor = true
		for _, f := range d.class.Fields {
			m.Params = append(m.Params, &program.Variable{Name: f.Var.Name, TypeName: f.Var.TypeName, Pos: m.Pos})
		}
	}
	if m.IsConstructor && m.Name == "" {
		m.Name = d.class.SimpleName()
	}
	for _, p := range m.Params {
		p.Owner = m
	}

	body := n.ChildByFieldName("body")
	m.HasBody = body != nil
	if d.class.IsInterface() {
		if !m.Modifiers.Has(program.ModPrivate) {
			m.Modifiers |= program.ModPublic
		}
		if body == nil && !m.Modifiers.Has(program.ModStatic) {
			m.Modifiers |= program.ModAbstract
		}
	}

	d.class.AddMethod(m)
	d.methods = append(d.methods, methodDecl{method: m, body: body})
}

// declareInitializer turns an initializer block into a synthetic private
// method so the calls it makes have a caller.
func (b *builder) declareInitializer(d *classDecl, n, body *sitter.Node, name string, mods program.Modifier) {
	m := &program.Method{
		Name:      name,
		Modifiers: mods | program.ModPrivate,
		HasBody:   true,
		Pos:       d.unit.pos(n),
	}
	d.class.AddMethod(m)
	d.methods = append(d.methods, methodDecl{method: m, body: body})
}

func (b *builder) declareField(d *classDecl, n *sitter.Node) {
	u := d.unit
	typ := u.text(n.ChildByFieldName("type"))
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		v := &program.Variable{
			Name:     u.text(decl.ChildByFieldName("name")),
			TypeName: typ + dimensions(decl),
			Pos:      u.pos(decl),
		}
		d.class.AddField(v, nil)
		d.fields = append(d.fields, fieldDecl{
			field: d.class.Fields[len(d.class.Fields)-1],
			value: decl.ChildByFieldName("value"),
		})
	}
}

func (b *builder) declareConstant(d *classDecl, n *sitter.Node) {
	u := d.unit
	v := &program.Variable{Name: u.text(n.ChildByFieldName("name")), Type: d.class, TypeName: d.class.Name, Pos: u.pos(n)}
	d.class.AddField(v, nil)

	body := n.ChildByFieldName("body")
	if body == nil {
		body = childOfType(n, "class_body")
	}
	d.constants = append(d.constants, constantDecl{
		field: d.class.Fields[len(d.class.Fields)-1],
		args:  n.ChildByFieldName("arguments"),
		body:  body,
	})
}

// params reads formal parameters. Varargs keep a trailing "..." in their
// type name.
func params(u *unit, n *sitter.Node) []*program.Variable {
	if n == nil {
		return nil
	}
	var out []*program.Variable
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		switch p.Type() {
		case "formal_parameter":
			out = append(out, &program.Variable{
				Name:     u.text(p.ChildByFieldName("name")),
				TypeName: u.text(p.ChildByFieldName("type")) + dimensions(p),
				Pos:      u.pos(p),
			})
		case "spread_parameter":
			v := &program.Variable{Pos: u.pos(p)}
			for j := 0; j < int(p.NamedChildCount()); j++ {
				child := p.NamedChild(j)
				switch child.Type() {
				case "modifiers":
				case "variable_declarator":
					v.Name = u.text(child.ChildByFieldName("name"))
				default:
					v.TypeName = u.text(child) + "..."
				}
			}
			out = append(out, v)
		case "identifier":
			out = append(out, &program.Variable{Name: u.text(p), Pos: u.pos(p)})
		}
	}
	return out
}

// dimensions returns "[]" when a declarator carries C-style array brackets.
func dimensions(n *sitter.Node) string {
	if childOfType(n, "dimensions") != nil {
		return "[]"
	}
	return ""
}

func childOfType(n *sitter.Node, kind string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == kind {
			return child
		}
	}
	return nil
}
