// Package targets tracks what functional-interface variables may hold and
// maps calls through them to the bodies they reach.
package targets

import "github.com/l3aro/go-call-graph/pkg/program"

// Receiver is the origin of a value held by a variable: an instantiated
// class, a lambda literal or a method reference.
type Receiver interface {
	isReceiver()
}

// ClassReceiver is a value created by a constructor call.
type ClassReceiver struct {
	Class *program.Class
}

// LambdaReceiver is a lambda literal.
type LambdaReceiver struct {
	Lambda *program.Lambda
}

// ReferenceReceiver is a method reference such as Foo::bar.
type ReferenceReceiver struct {
	Ref *program.MethodRef
}

func (ClassReceiver) isReceiver() {}
func (LambdaReceiver) isReceiver() {}
func (ReferenceReceiver) isReceiver() {}

// Target is a callable a functional call may reach.
type Target interface {
	Callable() program.Callable
}

// MethodTarget is a concrete method.
type MethodTarget struct {
	Method *program.Method
}

// LambdaTarget is a lambda body.
type LambdaTarget struct {
	Lambda *program.Lambda
}

func (t MethodTarget) Callable() program.Callable { return t.Method }
func (t LambdaTarget) Callable() program.Callable { return t.Lambda }
