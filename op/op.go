// Package op defines opcodes used by the Lox compiler and virtual machine.
package op

// Code is a one-byte opcode that indicates an operation to execute.
type Code byte

const (
	Constant Code = iota
	Nil
	True
	False
	Pop
	GetLocal
	SetLocal
	GetGlobal
	DefineGlobal
	SetGlobal
	GetUpvalue
	SetUpvalue
	GetProperty
	SetProperty
	GetSuper
	Equal
	Greater
	Less
	Add
	Subtract
	Multiply
	Divide
	Not
	Negate
	Print
	Jump
	JumpIfFalse
	Loop
	Call
	Invoke
	SuperInvoke
	Closure
	CloseUpvalue
	Return
	Class
	Inherit
	Method

	// Count is the number of defined opcodes. It sizes the dispatch table.
	Count
)

// OperandKind describes how an instruction's operand bytes are laid out,
// which the disassembler uses to format and advance past instructions.
type OperandKind int

const (
	// OperandNone means the instruction is a bare opcode.
	OperandNone OperandKind = iota
	// OperandByte is a single u8 operand (a stack slot or argument count).
	OperandByte
	// OperandConstant is a u8 index into the chunk's constant pool.
	OperandConstant
	// OperandJump is a u16 branch offset (forward for Jump, backward for Loop).
	OperandJump
	// OperandInvoke is a u8 constant index followed by a u8 argument count.
	OperandInvoke
	// OperandClosure is a u8 constant index followed by a variable-length
	// run of (isLocal, index) byte pairs, one per captured upvalue.
	OperandClosure
)

// Info contains information about an opcode.
type Info struct {
	Code    Code
	Name    string
	Operand OperandKind
}

var infos [Count]Info

func init() {
	for _, info := range []Info{
		{Constant, "OP_CONSTANT", OperandConstant},
		{Nil, "OP_NIL", OperandNone},
		{True, "OP_TRUE", OperandNone},
		{False, "OP_FALSE", OperandNone},
		{Pop, "OP_POP", OperandNone},
		{GetLocal, "OP_GET_LOCAL", OperandByte},
		{SetLocal, "OP_SET_LOCAL", OperandByte},
		{GetGlobal, "OP_GET_GLOBAL", OperandConstant},
		{DefineGlobal, "OP_DEFINE_GLOBAL", OperandConstant},
		{SetGlobal, "OP_SET_GLOBAL", OperandConstant},
		{GetUpvalue, "OP_GET_UPVALUE", OperandByte},
		{SetUpvalue, "OP_SET_UPVALUE", OperandByte},
		{GetProperty, "OP_GET_PROPERTY", OperandConstant},
		{SetProperty, "OP_SET_PROPERTY", OperandConstant},
		{GetSuper, "OP_GET_SUPER", OperandConstant},
		{Equal, "OP_EQUAL", OperandNone},
		{Greater, "OP_GREATER", OperandNone},
		{Less, "OP_LESS", OperandNone},
		{Add, "OP_ADD", OperandNone},
		{Subtract, "OP_SUBTRACT", OperandNone},
		{Multiply, "OP_MULTIPLY", OperandNone},
		{Divide, "OP_DIVIDE", OperandNone},
		{Not, "OP_NOT", OperandNone},
		{Negate, "OP_NEGATE", OperandNone},
		{Print, "OP_PRINT", OperandNone},
		{Jump, "OP_JUMP", OperandJump},
		{JumpIfFalse, "OP_JUMP_IF_FALSE", OperandJump},
		{Loop, "OP_LOOP", OperandJump},
		{Call, "OP_CALL", OperandByte},
		{Invoke, "OP_INVOKE", OperandInvoke},
		{SuperInvoke, "OP_SUPER_INVOKE", OperandInvoke},
		{Closure, "OP_CLOSURE", OperandClosure},
		{CloseUpvalue, "OP_CLOSE_UPVALUE", OperandNone},
		{Return, "OP_RETURN", OperandNone},
		{Class, "OP_CLASS", OperandConstant},
		{Inherit, "OP_INHERIT", OperandNone},
		{Method, "OP_METHOD", OperandConstant},
	} {
		infos[info.Code] = info
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(code Code) Info {
	if int(code) >= len(infos) {
		return Info{Code: code, Name: "OP_UNKNOWN"}
	}
	return infos[code]
}
