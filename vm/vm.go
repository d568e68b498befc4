// Package vm provides the stack-based virtual machine that executes
// compiled Lox bytecode.
package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cloudcmds/lox/builtins"
	"github.com/cloudcmds/lox/compiler"
	"github.com/cloudcmds/lox/errz"
	"github.com/cloudcmds/lox/object"
)

const (
	// FramesMax bounds call depth.
	FramesMax = 64

	// StackMax is the value stack size: every frame can address 256 slots.
	StackMax = FramesMax * 256

	// stackHeadroom is the slack checked before each instruction so that no
	// single instruction can push past the end of the stack.
	stackHeadroom = 16
)

// errHalt signals a clean return from the outermost frame.
var errHalt = errors.New("halt")

// callFrame is one call record: the closure being executed, its instruction
// pointer, and the base of its window into the shared value stack. Slot zero
// of the window holds the receiver for methods, or the closure itself for
// functions.
type callFrame struct {
	closure *object.Closure
	ip      int
	slots   int
}

// VM executes Lox bytecode. It is strictly single-threaded; a VM may be
// reused for sequential Interpret calls, which share globals and the string
// intern table.
type VM struct {
	heap         *object.Heap
	stack        [StackMax]object.Value
	stackTop     int
	frames       [FramesMax]callFrame
	frameCount   int
	frame        *callFrame
	globals      object.Table
	openUpvalues *object.Upvalue
	initString   *object.String
	stdout       io.Writer
	trace        io.Writer
	mode         DispatchMode
	startTime    time.Time
}

// Option configures a VM.
type Option func(*VM)

// WithStdout directs the print statement's output to w. Defaults to
// os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(vm *VM) { vm.stdout = w }
}

// WithHeap supplies a preconfigured heap, e.g. one with GC tracing or
// stress collection enabled.
func WithHeap(heap *object.Heap) Option {
	return func(vm *VM) { vm.heap = heap }
}

// WithDispatch selects the instruction dispatch strategy. Both strategies
// are behaviorally identical.
func WithDispatch(mode DispatchMode) Option {
	return func(vm *VM) { vm.mode = mode }
}

// WithTrace writes a per-instruction execution trace (stack contents plus
// the disassembled instruction) to w.
func WithTrace(w io.Writer) Option {
	return func(vm *VM) { vm.trace = w }
}

// New creates a VM with the four standard natives installed.
func New(opts ...Option) *VM {
	vm := &VM{
		stdout:    os.Stdout,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.heap == nil {
		vm.heap = object.NewHeap()
	}
	vm.heap.AddRoots(vm)
	vm.initString = vm.heap.Intern("init")
	for name, fn := range builtins.All(vm.heap, vm.startTime, vm.Free) {
		vm.defineNative(name, fn)
	}
	return vm
}

// Heap returns the VM's heap.
func (vm *VM) Heap() *object.Heap {
	return vm.heap
}

// Interpret compiles and runs a unit of source. Globals and interned strings
// persist across calls, which is what a REPL relies on.
func (vm *VM) Interpret(source string) error {
	fn, err := compiler.Compile(source, vm.heap)
	if err != nil {
		return err
	}

	// The function must be visible to the collector while the closure
	// wrapping it is allocated.
	vm.push(object.ObjectValue(fn))
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(object.ObjectValue(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

// Free releases the VM's resources: all heap objects, the intern set, and
// the globals table. The VM must not be used afterwards.
func (vm *VM) Free() {
	vm.globals.Reset()
	vm.initString = nil
	vm.resetStack()
	vm.heap.RemoveRoots(vm)
	vm.heap.Free()
}

// MarkRoots marks everything the VM can reach: the live portion of the
// value stack, each frame's closure, the open upvalue chain, the globals
// table, and the interned "init" name. Implements object.RootSource.
func (vm *VM) MarkRoots(h *object.Heap) {
	for i := 0; i < vm.stackTop; i++ {
		h.MarkValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		h.MarkObject(vm.frames[i].closure)
	}
	for upvalue := vm.openUpvalues; upvalue != nil; upvalue = upvalue.Next {
		h.MarkObject(upvalue)
	}
	h.MarkTable(&vm.globals)
	if vm.initString != nil {
		h.MarkObject(vm.initString)
	}
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.frame = nil
	vm.openUpvalues = nil
}

func (vm *VM) push(value object.Value) {
	vm.stack[vm.stackTop] = value
	vm.stackTop++
}

func (vm *VM) pop() object.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) object.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) readByte() byte {
	b := vm.frame.closure.Function.Chunk.Code[vm.frame.ip]
	vm.frame.ip++
	return b
}

func (vm *VM) readShort() int {
	chunk := vm.frame.closure.Function.Chunk
	hi := int(chunk.Code[vm.frame.ip])
	lo := int(chunk.Code[vm.frame.ip+1])
	vm.frame.ip += 2
	return hi<<8 | lo
}

func (vm *VM) readConstant() object.Value {
	return vm.frame.closure.Function.Chunk.Constants[vm.readByte()]
}

func (vm *VM) readString() *object.String {
	s, _ := vm.readConstant().AsString()
	return s
}

func (vm *VM) defineNative(name string, fn object.NativeFn) {
	// Both objects are pushed so they survive a collection triggered by the
	// second allocation.
	vm.push(object.ObjectValue(vm.heap.Intern(name)))
	vm.push(object.ObjectValue(vm.heap.NewNative(fn)))
	nameStr, _ := vm.stack[0].AsString()
	vm.globals.Set(nameStr, vm.stack[1])
	vm.pop()
	vm.pop()
}

// runtimeError builds an error carrying a backtrace of the live frames,
// then resets the stack per the error contract: a runtime error unwinds
// everything.
func (vm *VM) runtimeError(kind errz.Kind, format string, args ...any) error {
	stack := make([]errz.StackFrame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Value
		}
		ip := frame.ip - 1
		if ip < 0 {
			ip = 0
		}
		stack = append(stack, errz.StackFrame{Function: name, Line: fn.Chunk.Line(ip)})
	}
	vm.resetStack()
	return &errz.RuntimeError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Stack:   stack,
	}
}

// call activates a frame for the closure. The callee and its arguments are
// already on the stack, so the frame's window starts at the callee slot.
func (vm *VM) call(closure *object.Closure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError(errz.KindArity, "Expected %d arguments but got %d.",
			closure.Function.Arity, argCount)
	}
	if vm.frameCount == FramesMax {
		return vm.runtimeError(errz.KindRuntime, "Stack overflow.")
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argCount - 1
	vm.frame = frame
	return nil
}

// callValue dispatches a call on any value: closures, classes (construct
// and maybe init), bound methods, and natives. Everything else is an error.
func (vm *VM) callValue(callee object.Value, argCount int) error {
	if callee.IsObject() {
		switch callee := callee.AsObject().(type) {
		case *object.BoundMethod:
			vm.stack[vm.stackTop-argCount-1] = callee.Receiver
			return vm.call(callee.Method, argCount)
		case *object.Class:
			vm.stack[vm.stackTop-argCount-1] = object.ObjectValue(vm.heap.NewInstance(callee))
			if initializer, ok := callee.Methods.Get(vm.initString); ok {
				closure := initializer.AsObject().(*object.Closure)
				return vm.call(closure, argCount)
			}
			if argCount != 0 {
				return vm.runtimeError(errz.KindArity, "Expected 0 arguments but got %d.", argCount)
			}
			return nil
		case *object.Closure:
			return vm.call(callee, argCount)
		case *object.Native:
			result := callee.Fn(argCount, vm.stack[vm.stackTop-argCount:vm.stackTop])
			vm.stackTop -= argCount + 1
			vm.push(result)
			return nil
		}
	}
	return vm.runtimeError(errz.KindType, "Can only call functions and classes.")
}

func (vm *VM) invokeFromClass(class *object.Class, name *object.String, argCount int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError(errz.KindName, "Undefined property '%s'.", name.Value)
	}
	return vm.call(method.AsObject().(*object.Closure), argCount)
}

// invoke is the fused property-access-and-call path: a field holding a
// callable shadows a method of the same name.
func (vm *VM) invoke(name *object.String, argCount int) error {
	receiver := vm.peek(argCount)
	instance, ok := asInstance(receiver)
	if !ok {
		return vm.runtimeError(errz.KindType, "Only instances have methods.")
	}
	if value, found := instance.Fields.Get(name); found {
		vm.stack[vm.stackTop-argCount-1] = value
		return vm.callValue(value, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) bindMethod(class *object.Class, name *object.String) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError(errz.KindName, "Undefined property '%s'.", name.Value)
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), method.AsObject().(*object.Closure))
	vm.pop()
	vm.push(object.ObjectValue(bound))
	return nil
}

// captureUpvalue returns the open upvalue for a stack slot, reusing an
// existing one so that every closure over the same variable shares a cell.
// The open list stays sorted by descending slot.
func (vm *VM) captureUpvalue(slot int) *object.Upvalue {
	var prev *object.Upvalue
	upvalue := vm.openUpvalues
	for upvalue != nil && upvalue.Slot > slot {
		prev = upvalue
		upvalue = upvalue.Next
	}
	if upvalue != nil && upvalue.Slot == slot {
		return upvalue
	}
	created := vm.heap.NewUpvalue(&vm.stack[slot], slot)
	created.Next = upvalue
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above the boundary slot:
// the stack value is hoisted into the cell and the cell redirected to
// itself.
func (vm *VM) closeUpvalues(boundary int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= boundary {
		upvalue := vm.openUpvalues
		upvalue.Closed = *upvalue.Location
		upvalue.Location = &upvalue.Closed
		upvalue.Slot = -1
		vm.openUpvalues = upvalue.Next
	}
}

func asInstance(v object.Value) (*object.Instance, bool) {
	if !v.IsObject() {
		return nil, false
	}
	instance, ok := v.AsObject().(*object.Instance)
	return instance, ok
}

func asClass(v object.Value) (*object.Class, bool) {
	if !v.IsObject() {
		return nil, false
	}
	class, ok := v.AsObject().(*object.Class)
	return class, ok
}
