// Package dis disassembles compiled chunks into a human-readable listing.
package dis

import (
	"fmt"
	"io"

	"github.com/cloudcmds/lox/object"
	"github.com/cloudcmds/lox/op"
)

// Disassemble writes a listing of every instruction in the chunk.
func Disassemble(chunk *object.Chunk, name string, w io.Writer) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(chunk.Code); {
		offset = Instruction(chunk, offset, w)
	}
}

// Instruction writes one instruction at the given offset and returns the
// offset of the next instruction.
func Instruction(chunk *object.Chunk, offset int, w io.Writer) int {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && chunk.Line(offset) == chunk.Line(offset-1) {
		fmt.Fprintf(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", chunk.Line(offset))
	}

	code := op.Code(chunk.Code[offset])
	info := op.GetInfo(code)
	switch info.Operand {
	case op.OperandNone:
		fmt.Fprintf(w, "%s\n", info.Name)
		return offset + 1
	case op.OperandByte:
		slot := chunk.Code[offset+1]
		fmt.Fprintf(w, "%-16s %4d\n", info.Name, slot)
		return offset + 2
	case op.OperandConstant:
		constant := chunk.Code[offset+1]
		fmt.Fprintf(w, "%-16s %4d '%s'\n", info.Name, constant, chunk.Constants[constant])
		return offset + 2
	case op.OperandJump:
		jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
		sign := 1
		if code == op.Loop {
			sign = -1
		}
		fmt.Fprintf(w, "%-16s %4d -> %d\n", info.Name, offset, offset+3+sign*jump)
		return offset + 3
	case op.OperandInvoke:
		constant := chunk.Code[offset+1]
		argCount := chunk.Code[offset+2]
		fmt.Fprintf(w, "%-16s (%d args) %4d '%s'\n", info.Name, argCount, constant, chunk.Constants[constant])
		return offset + 3
	case op.OperandClosure:
		constant := chunk.Code[offset+1]
		offset += 2
		fmt.Fprintf(w, "%-16s %4d '%s'\n", info.Name, constant, chunk.Constants[constant])
		fn := chunk.Constants[constant].AsObject().(*object.Function)
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := chunk.Code[offset]
			index := chunk.Code[offset+1]
			kind := "upvalue"
			if isLocal == 1 {
				kind = "local"
			}
			fmt.Fprintf(w, "%04d    |                     %s %d\n", offset, kind, index)
			offset += 2
		}
		return offset
	default:
		fmt.Fprintf(w, "%s\n", info.Name)
		return offset + 1
	}
}
