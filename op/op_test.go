package op

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo(Constant)
	require.Equal(t, Constant, info.Code)
	require.Equal(t, "OP_CONSTANT", info.Name)
	require.Equal(t, OperandConstant, info.Operand)

	info = GetInfo(Return)
	require.Equal(t, "OP_RETURN", info.Name)
	require.Equal(t, OperandNone, info.Operand)

	info = GetInfo(Closure)
	require.Equal(t, OperandClosure, info.Operand)
}

func TestEveryOpcodeHasInfo(t *testing.T) {
	for code := Code(0); code < Count; code++ {
		info := GetInfo(code)
		require.Equal(t, code, info.Code, "opcode %d", code)
		require.NotEmpty(t, info.Name, "opcode %d", code)
	}
}

func TestUnknownOpcode(t *testing.T) {
	require.Equal(t, "OP_UNKNOWN", GetInfo(Code(250)).Name)
}
