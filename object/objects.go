package object

import (
	"fmt"
)

// ObjKind discriminates the heap object variants.
type ObjKind uint8

const (
	KindString ObjKind = iota
	KindFunction
	KindNative
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindBoundMethod
)

// Obj is the header embedded in every heap object. The next pointer threads
// all live objects into the intrusive list anchored at the Heap; marked is
// the GC color bit (white when clear, gray or black when set); size is the
// number of bytes charged to the heap when the object was allocated.
type Obj struct {
	kind   ObjKind
	marked bool
	size   int
	next   HeapObject
}

// Header returns the object header. Embedding Obj gives every heap object
// this method, which is how they satisfy HeapObject.
func (o *Obj) Header() *Obj { return o }

// Kind returns the object's kind tag.
func (o *Obj) Kind() ObjKind { return o.kind }

// HeapObject is implemented by every heap-allocated object.
type HeapObject interface {
	Header() *Obj
	String() string
}

// NativeFn is the ABI for host functions exposed to Lox code.
type NativeFn func(argCount int, args []Value) Value

// String is an immutable, interned Lox string. Hash caches the FNV-1a hash
// of the contents, used by the table and the intern set.
type String struct {
	Obj
	Value string
	Hash  uint32
}

func (s *String) String() string { return s.Value }

// Function is a compiled function: its bytecode chunk, arity, and the number
// of upvalues its closures capture. Name is nil for the top-level script.
type Function struct {
	Obj
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *String
}

func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Value)
}

// Native wraps a host callable.
type Native struct {
	Obj
	Fn NativeFn
}

func (n *Native) String() string { return "<native fn>" }

// Closure pairs a function with the upvalues it captured. Closures of the
// same function may share upvalue cells or hold distinct ones.
type Closure struct {
	Obj
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) String() string { return c.Function.String() }

// Upvalue is a heap cell mediating access to a captured variable. While the
// variable lives on the value stack the upvalue is open: Location points at
// the stack slot and Slot holds its index. Closing copies the variable into
// Closed, points Location at it, and sets Slot to -1. Open upvalues are
// threaded through Next in strictly descending Slot order.
type Upvalue struct {
	Obj
	Location *Value
	Closed   Value
	Next     *Upvalue
	Slot     int
}

func (u *Upvalue) String() string { return "upvalue" }

// Class is a Lox class with its method table.
type Class struct {
	Obj
	Name    *String
	Methods Table
}

func (c *Class) String() string { return c.Name.Value }

// Instance is an instance of a class with its field table.
type Instance struct {
	Obj
	Class  *Class
	Fields Table
}

func (i *Instance) String() string { return i.Class.Name.Value + " instance" }

// BoundMethod pairs a receiver with a method closure, produced when a method
// is accessed as a property.
type BoundMethod struct {
	Obj
	Receiver Value
	Method   *Closure
}

func (b *BoundMethod) String() string { return b.Method.String() }
