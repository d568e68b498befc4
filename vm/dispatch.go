package vm

import (
	"fmt"

	"github.com/cloudcmds/lox/dis"
	"github.com/cloudcmds/lox/errz"
	"github.com/cloudcmds/lox/object"
	"github.com/cloudcmds/lox/op"
)

// DispatchMode selects how the run loop maps opcodes to their
// implementations.
type DispatchMode int

const (
	// DispatchSwitch decodes opcodes with a switch statement.
	DispatchSwitch DispatchMode = iota

	// DispatchTable indexes a precomputed table of instruction functions by
	// opcode, the closest analogue of threaded dispatch available without
	// first-class labels.
	DispatchTable
)

// instructionFn executes one instruction. Both dispatch modes call the same
// functions, which is what makes them behaviorally indistinguishable.
type instructionFn func(*VM) error

var dispatchTable [op.Count]instructionFn

func init() {
	dispatchTable = [op.Count]instructionFn{
		op.Constant:     (*VM).opConstant,
		op.Nil:          (*VM).opNil,
		op.True:         (*VM).opTrue,
		op.False:        (*VM).opFalse,
		op.Pop:          (*VM).opPop,
		op.GetLocal:     (*VM).opGetLocal,
		op.SetLocal:     (*VM).opSetLocal,
		op.GetGlobal:    (*VM).opGetGlobal,
		op.DefineGlobal: (*VM).opDefineGlobal,
		op.SetGlobal:    (*VM).opSetGlobal,
		op.GetUpvalue:   (*VM).opGetUpvalue,
		op.SetUpvalue:   (*VM).opSetUpvalue,
		op.GetProperty:  (*VM).opGetProperty,
		op.SetProperty:  (*VM).opSetProperty,
		op.GetSuper:     (*VM).opGetSuper,
		op.Equal:        (*VM).opEqual,
		op.Greater:      (*VM).opGreater,
		op.Less:         (*VM).opLess,
		op.Add:          (*VM).opAdd,
		op.Subtract:     (*VM).opSubtract,
		op.Multiply:     (*VM).opMultiply,
		op.Divide:       (*VM).opDivide,
		op.Not:          (*VM).opNot,
		op.Negate:       (*VM).opNegate,
		op.Print:        (*VM).opPrint,
		op.Jump:         (*VM).opJump,
		op.JumpIfFalse:  (*VM).opJumpIfFalse,
		op.Loop:         (*VM).opLoop,
		op.Call:         (*VM).opCall,
		op.Invoke:       (*VM).opInvoke,
		op.SuperInvoke:  (*VM).opSuperInvoke,
		op.Closure:      (*VM).opClosure,
		op.CloseUpvalue: (*VM).opCloseUpvalue,
		op.Return:       (*VM).opReturn,
		op.Class:        (*VM).opClass,
		op.Inherit:      (*VM).opInherit,
		op.Method:       (*VM).opMethod,
	}
}

// run executes until the outermost frame returns or an error unwinds.
func (vm *VM) run() error {
	var err error
	if vm.mode == DispatchTable {
		err = vm.runTable()
	} else {
		err = vm.runSwitch()
	}
	if err == errHalt {
		return nil
	}
	return err
}

func (vm *VM) runTable() error {
	for {
		if vm.trace != nil {
			vm.traceExecution()
		}
		if vm.stackTop >= StackMax-stackHeadroom {
			return vm.runtimeError(errz.KindRuntime, "Stack overflow.")
		}
		if err := dispatchTable[vm.readByte()](vm); err != nil {
			return err
		}
	}
}

func (vm *VM) runSwitch() error {
	for {
		if vm.trace != nil {
			vm.traceExecution()
		}
		if vm.stackTop >= StackMax-stackHeadroom {
			return vm.runtimeError(errz.KindRuntime, "Stack overflow.")
		}
		var err error
		switch op.Code(vm.readByte()) {
		case op.Constant:
			err = vm.opConstant()
		case op.Nil:
			err = vm.opNil()
		case op.True:
			err = vm.opTrue()
		case op.False:
			err = vm.opFalse()
		case op.Pop:
			err = vm.opPop()
		case op.GetLocal:
			err = vm.opGetLocal()
		case op.SetLocal:
			err = vm.opSetLocal()
		case op.GetGlobal:
			err = vm.opGetGlobal()
		case op.DefineGlobal:
			err = vm.opDefineGlobal()
		case op.SetGlobal:
			err = vm.opSetGlobal()
		case op.GetUpvalue:
			err = vm.opGetUpvalue()
		case op.SetUpvalue:
			err = vm.opSetUpvalue()
		case op.GetProperty:
			err = vm.opGetProperty()
		case op.SetProperty:
			err = vm.opSetProperty()
		case op.GetSuper:
			err = vm.opGetSuper()
		case op.Equal:
			err = vm.opEqual()
		case op.Greater:
			err = vm.opGreater()
		case op.Less:
			err = vm.opLess()
		case op.Add:
			err = vm.opAdd()
		case op.Subtract:
			err = vm.opSubtract()
		case op.Multiply:
			err = vm.opMultiply()
		case op.Divide:
			err = vm.opDivide()
		case op.Not:
			err = vm.opNot()
		case op.Negate:
			err = vm.opNegate()
		case op.Print:
			err = vm.opPrint()
		case op.Jump:
			err = vm.opJump()
		case op.JumpIfFalse:
			err = vm.opJumpIfFalse()
		case op.Loop:
			err = vm.opLoop()
		case op.Call:
			err = vm.opCall()
		case op.Invoke:
			err = vm.opInvoke()
		case op.SuperInvoke:
			err = vm.opSuperInvoke()
		case op.Closure:
			err = vm.opClosure()
		case op.CloseUpvalue:
			err = vm.opCloseUpvalue()
		case op.Return:
			err = vm.opReturn()
		case op.Class:
			err = vm.opClass()
		case op.Inherit:
			err = vm.opInherit()
		case op.Method:
			err = vm.opMethod()
		default:
			err = vm.runtimeError(errz.KindRuntime, "Unknown opcode.")
		}
		if err != nil {
			return err
		}
	}
}

func (vm *VM) traceExecution() {
	fmt.Fprintf(vm.trace, "          ")
	for i := 0; i < vm.stackTop; i++ {
		fmt.Fprintf(vm.trace, "[ %s ]", vm.stack[i])
	}
	fmt.Fprintf(vm.trace, "\n")
	dis.Instruction(vm.frame.closure.Function.Chunk, vm.frame.ip, vm.trace)
}

// ---------------------------------------------------------------------------
// Instruction implementations

func (vm *VM) opConstant() error {
	vm.push(vm.readConstant())
	return nil
}

func (vm *VM) opNil() error {
	vm.push(object.NilValue)
	return nil
}

func (vm *VM) opTrue() error {
	vm.push(object.Bool(true))
	return nil
}

func (vm *VM) opFalse() error {
	vm.push(object.Bool(false))
	return nil
}

func (vm *VM) opPop() error {
	vm.pop()
	return nil
}

func (vm *VM) opGetLocal() error {
	slot := int(vm.readByte())
	vm.push(vm.stack[vm.frame.slots+slot])
	return nil
}

func (vm *VM) opSetLocal() error {
	slot := int(vm.readByte())
	vm.stack[vm.frame.slots+slot] = vm.peek(0)
	return nil
}

func (vm *VM) opGetGlobal() error {
	name := vm.readString()
	value, ok := vm.globals.Get(name)
	if !ok {
		return vm.runtimeError(errz.KindName, "Undefined variable '%s'.", name.Value)
	}
	vm.push(value)
	return nil
}

func (vm *VM) opDefineGlobal() error {
	name := vm.readString()
	vm.globals.Set(name, vm.peek(0))
	vm.pop()
	return nil
}

func (vm *VM) opSetGlobal() error {
	name := vm.readString()
	// Set reports novelty after the fact, so assigning to an undefined
	// global requires deleting the transient entry it just created.
	if vm.globals.Set(name, vm.peek(0)) {
		vm.globals.Delete(name)
		return vm.runtimeError(errz.KindName, "Undefined variable '%s'.", name.Value)
	}
	return nil
}

func (vm *VM) opGetUpvalue() error {
	slot := vm.readByte()
	vm.push(*vm.frame.closure.Upvalues[slot].Location)
	return nil
}

func (vm *VM) opSetUpvalue() error {
	slot := vm.readByte()
	*vm.frame.closure.Upvalues[slot].Location = vm.peek(0)
	return nil
}

func (vm *VM) opGetProperty() error {
	instance, ok := asInstance(vm.peek(0))
	if !ok {
		return vm.runtimeError(errz.KindType, "Only instances have properties.")
	}
	name := vm.readString()
	if value, found := instance.Fields.Get(name); found {
		vm.pop() // instance
		vm.push(value)
		return nil
	}
	return vm.bindMethod(instance.Class, name)
}

func (vm *VM) opSetProperty() error {
	instance, ok := asInstance(vm.peek(1))
	if !ok {
		return vm.runtimeError(errz.KindType, "Only instances have fields.")
	}
	instance.Fields.Set(vm.readString(), vm.peek(0))
	value := vm.pop()
	vm.pop() // instance
	vm.push(value)
	return nil
}

func (vm *VM) opGetSuper() error {
	name := vm.readString()
	superclass, _ := asClass(vm.pop())
	return vm.bindMethod(superclass, name)
}

func (vm *VM) opEqual() error {
	b := vm.pop()
	a := vm.pop()
	vm.push(object.Bool(a.Equals(b)))
	return nil
}

func (vm *VM) opGreater() error {
	return vm.binaryCompare(func(a, b float64) bool { return a > b })
}

func (vm *VM) opLess() error {
	return vm.binaryCompare(func(a, b float64) bool { return a < b })
}

func (vm *VM) binaryCompare(apply func(a, b float64) bool) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError(errz.KindType, "Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(object.Bool(apply(a, b)))
	return nil
}

func (vm *VM) binaryArith(apply func(a, b float64) float64) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError(errz.KindType, "Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(object.Number(apply(a, b)))
	return nil
}

func (vm *VM) opAdd() error {
	bStr, bIsStr := vm.peek(0).AsString()
	aStr, aIsStr := vm.peek(1).AsString()
	if aIsStr && bIsStr {
		// The operands stay on the stack until the result is interned, so a
		// collection triggered by the allocation cannot free them.
		result := vm.heap.Intern(aStr.Value + bStr.Value)
		vm.pop()
		vm.pop()
		vm.push(object.ObjectValue(result))
		return nil
	}
	if vm.peek(0).IsNumber() && vm.peek(1).IsNumber() {
		b := vm.pop().AsNumber()
		a := vm.pop().AsNumber()
		vm.push(object.Number(a + b))
		return nil
	}
	return vm.runtimeError(errz.KindType, "Operands must be two numbers or two strings.")
}

func (vm *VM) opSubtract() error {
	return vm.binaryArith(func(a, b float64) float64 { return a - b })
}

func (vm *VM) opMultiply() error {
	return vm.binaryArith(func(a, b float64) float64 { return a * b })
}

func (vm *VM) opDivide() error {
	return vm.binaryArith(func(a, b float64) float64 { return a / b })
}

func (vm *VM) opNot() error {
	vm.push(object.Bool(vm.pop().IsFalsey()))
	return nil
}

func (vm *VM) opNegate() error {
	if !vm.peek(0).IsNumber() {
		return vm.runtimeError(errz.KindType, "Operand must be a number.")
	}
	vm.push(object.Number(-vm.pop().AsNumber()))
	return nil
}

func (vm *VM) opPrint() error {
	fmt.Fprintln(vm.stdout, vm.pop().String())
	return nil
}

func (vm *VM) opJump() error {
	offset := vm.readShort()
	vm.frame.ip += offset
	return nil
}

func (vm *VM) opJumpIfFalse() error {
	offset := vm.readShort()
	// Non-destructive: short-circuit operators need the operand to remain
	// as the expression result.
	if vm.peek(0).IsFalsey() {
		vm.frame.ip += offset
	}
	return nil
}

func (vm *VM) opLoop() error {
	offset := vm.readShort()
	vm.frame.ip -= offset
	return nil
}

func (vm *VM) opCall() error {
	argCount := int(vm.readByte())
	return vm.callValue(vm.peek(argCount), argCount)
}

func (vm *VM) opInvoke() error {
	name := vm.readString()
	argCount := int(vm.readByte())
	return vm.invoke(name, argCount)
}

func (vm *VM) opSuperInvoke() error {
	name := vm.readString()
	argCount := int(vm.readByte())
	superclass, _ := asClass(vm.pop())
	return vm.invokeFromClass(superclass, name, argCount)
}

func (vm *VM) opClosure() error {
	fn := vm.readConstant().AsObject().(*object.Function)
	closure := vm.heap.NewClosure(fn)
	// Pushed before the captures run so the half-built closure is a root
	// for any collection that capturing triggers.
	vm.push(object.ObjectValue(closure))
	for i := range closure.Upvalues {
		isLocal := vm.readByte()
		index := int(vm.readByte())
		if isLocal == 1 {
			closure.Upvalues[i] = vm.captureUpvalue(vm.frame.slots + index)
		} else {
			closure.Upvalues[i] = vm.frame.closure.Upvalues[index]
		}
	}
	return nil
}

func (vm *VM) opCloseUpvalue() error {
	vm.closeUpvalues(vm.stackTop - 1)
	vm.pop()
	return nil
}

func (vm *VM) opReturn() error {
	result := vm.pop()
	frame := vm.frame
	vm.closeUpvalues(frame.slots)
	vm.frameCount--
	if vm.frameCount == 0 {
		vm.pop() // the script closure
		return errHalt
	}
	vm.stackTop = frame.slots
	vm.push(result)
	vm.frame = &vm.frames[vm.frameCount-1]
	return nil
}

func (vm *VM) opClass() error {
	vm.push(object.ObjectValue(vm.heap.NewClass(vm.readString())))
	return nil
}

func (vm *VM) opInherit() error {
	superclass, ok := asClass(vm.peek(1))
	if !ok {
		return vm.runtimeError(errz.KindType, "Superclass must be a class.")
	}
	subclass, _ := asClass(vm.peek(0))
	subclass.Methods.AddAll(&superclass.Methods)
	vm.pop() // subclass
	return nil
}

func (vm *VM) opMethod() error {
	name := vm.readString()
	method := vm.peek(0)
	class, _ := asClass(vm.peek(1))
	class.Methods.Set(name, method)
	vm.pop()
	return nil
}
