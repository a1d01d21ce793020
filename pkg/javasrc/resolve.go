package javasrc

import (
	"strings"

	"github.com/l3aro/go-call-graph/pkg/program"
)

var primitives = map[string]bool{
	"void": true, "boolean": true, "byte": true, "char": true, "short": true,
	"int": true, "long": true, "float": true, "double": true, "var": true,
}

func (b *builder) resolve() {
	for _, d := range b.decls {
		b.resolveDecl(d)
	}
}

// resolveDecl links supertypes and declared member types of d.
func (b *builder) resolveDecl(d *classDecl) {
	c := d.class
	if c.Kind != program.KindAnonymous {
		for _, name := range c.SuperNames {
			if s := b.resolveType(name, d); s != nil && s != c {
				c.Supertypes = append(c.Supertypes, s)
			}
		}
	}
	for _, f := range c.Fields {
		if f.Var.Type == nil {
			f.Var.Type = b.resolveType(f.Var.TypeName, d)
		}
	}
	for _, m := range c.Methods {
		for _, p := range m.Params {
			p.Type = b.resolveType(p.TypeName, d)
		}
	}
}

// resolveType maps a type as written inside d to a program class. Arrays,
// primitives and types declared outside the program resolve to nil.
func (b *builder) resolveType(written string, d *classDecl) *program.Class {
	name := strings.TrimSpace(written)
	if i := strings.Index(name, "<"); i >= 0 {
		name = name[:i]
	}
	if name == "" || primitives[name] || strings.HasSuffix(written, "[]") || strings.HasSuffix(written, "...") {
		return nil
	}

	if !strings.Contains(name, ".") {
		return b.resolveSimple(name, d)
	}
	if c, ok := b.prog.Lookup(name); ok {
		return c
	}
	first, rest, _ := strings.Cut(name, ".")
	if c := b.resolveSimple(first, d); c != nil {
		if nested, ok := b.prog.Lookup(c.Name + "." + rest); ok {
			return nested
		}
	}
	return nil
}

// resolveSimple follows Java scoping: member types of the enclosing classes
// and their supertypes, then the compilation unit's package and imports.
func (b *builder) resolveSimple(name string, d *classDecl) *program.Class {
	for c := d.class; c != nil; c = c.Outer {
		if !c.IsAnonymous() && c.SimpleName() == name {
			return c
		}
		if nested, ok := b.prog.Lookup(c.Name + "." + name); ok {
			return nested
		}
		for _, a := range c.Ancestors() {
			if nested, ok := b.prog.Lookup(a.Name + "." + name); ok {
				return nested
			}
		}
	}

	u := d.unit
	qualified := name
	if u.pkg != "" {
		qualified = u.pkg + "." + name
	}
	if c, ok := b.prog.Lookup(qualified); ok {
		return c
	}

	for _, imp := range u.imports {
		if imp == name || strings.HasSuffix(imp, "."+name) {
			// A single-type import of a class outside the program shadows
			// any same-named program class.
			c, _ := b.prog.Lookup(imp)
			return c
		}
	}
	for _, pkg := range u.wildcard {
		if c, ok := b.prog.Lookup(pkg + "." + name); ok {
			return c
		}
	}

	if candidates := b.prog.LookupSimple(name); len(candidates) == 1 && !candidates[0].IsAnonymous() {
		return candidates[0]
	}
	return nil
}

// returnType resolves the declared return type of m in the scope of its class.
func (b *builder) returnType(m *program.Method) *program.Class {
	if c, ok := b.returnTypes[m]; ok {
		return c
	}
	var c *program.Class
	if d := b.byClass[m.Class]; d != nil {
		c = b.resolveType(m.ReturnType, d)
	}
	b.returnTypes[m] = c
	return c
}

func hierarchyOf(c *program.Class) []*program.Class {
	return append([]*program.Class{c}, c.Ancestors()...)
}

func isVariadic(m *program.Method) bool {
	n := len(m.Params)
	return n > 0 && strings.HasSuffix(m.Params[n-1].TypeName, "...")
}

// findMethod looks up a method by name and argument count in c and its
// ancestors, nearest first. A varargs method matches when no exact arity does.
func findMethod(c *program.Class, name string, arity int) *program.Method {
	classes := hierarchyOf(c)
	for _, k := range classes {
		for _, m := range k.Methods {
			if !m.IsConstructor && m.Name == name && m.Arity() == arity {
				return m
			}
		}
	}
	for _, k := range classes {
		for _, m := range k.Methods {
			if !m.IsConstructor && m.Name == name && isVariadic(m) && arity >= m.Arity()-1 {
				return m
			}
		}
	}
	return nil
}

// findMethodByName returns the nearest method named name, of any arity.
func findMethodByName(c *program.Class, name string) *program.Method {
	for _, k := range hierarchyOf(c) {
		for _, m := range k.Methods {
			if !m.IsConstructor && m.Name == name {
				return m
			}
		}
	}
	return nil
}

// findConstructor returns the constructor of c for arity arguments. A
// negative arity accepts the first constructor.
func findConstructor(c *program.Class, arity int) *program.Method {
	var variadic *program.Method
	for _, m := range c.Methods {
		if !m.IsConstructor {
			continue
		}
		if arity < 0 || m.Arity() == arity {
			return m
		}
		if variadic == nil && isVariadic(m) && arity >= m.Arity()-1 {
			variadic = m
		}
	}
	return variadic
}

func findField(c *program.Class, name string) *program.Variable {
	for _, k := range hierarchyOf(c) {
		if f := k.Field(name); f != nil {
			return f
		}
	}
	return nil
}

// superclass is the first resolved supertype that is not an interface.
func superclass(c *program.Class) *program.Class {
	if c == nil {
		return nil
	}
	for _, s := range c.Supertypes {
		if !s.IsInterface() {
			return s
		}
	}
	return nil
}
