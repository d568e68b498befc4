package dis

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/lox/compiler"
	"github.com/cloudcmds/lox/object"
	"github.com/cloudcmds/lox/op"
)

func compile(t *testing.T, source string) *object.Function {
	t.Helper()
	fn, err := compiler.Compile(source, object.NewHeap())
	require.NoError(t, err)
	return fn
}

func TestDisassembleListing(t *testing.T) {
	fn := compile(t, `print 1 + 2;`)
	var out bytes.Buffer
	Disassemble(fn.Chunk, "test", &out)

	listing := out.String()
	require.True(t, strings.HasPrefix(listing, "== test ==\n"))
	require.Contains(t, listing, "OP_CONSTANT")
	require.Contains(t, listing, "OP_ADD")
	require.Contains(t, listing, "OP_PRINT")
	require.Contains(t, listing, "OP_RETURN")
	require.Contains(t, listing, "'1'")
	require.Contains(t, listing, "'2'")
}

func TestInstructionOffsetsCoverChunk(t *testing.T) {
	fn := compile(t, `
var x = 1;
if (x > 0) { print x; } else { print -x; }
fun f(a) { return a; }
f(x);
`)
	chunk := fn.Chunk
	var out bytes.Buffer
	offset := 0
	for offset < len(chunk.Code) {
		next := Instruction(chunk, offset, &out)
		require.Greater(t, next, offset)
		offset = next
	}
	// Walking instruction-by-instruction lands exactly on the chunk end:
	// operand widths in the op table match what the compiler emits.
	require.Equal(t, len(chunk.Code), offset)
}

// Disassembling and re-reading the line table recovers the source line of
// every instruction.
func TestLineTableRoundTrip(t *testing.T) {
	fn := compile(t, "var a = 1;\nvar b = 2;\nprint a + b;")
	chunk := fn.Chunk
	require.Equal(t, len(chunk.Code), len(chunk.Lines))

	wantLines := map[int]bool{1: false, 2: false, 3: false}
	var out bytes.Buffer
	for offset := 0; offset < len(chunk.Code); {
		line := chunk.Line(offset)
		require.Contains(t, wantLines, line)
		wantLines[line] = true
		offset = Instruction(chunk, offset, &out)
	}
	for line, seen := range wantLines {
		require.True(t, seen, "no instruction recorded for line %d", line)
	}

	// Lines are non-decreasing across the straight-line chunk.
	previous := 0
	for offset := range chunk.Code {
		require.GreaterOrEqual(t, chunk.Line(offset), previous)
		previous = chunk.Line(offset)
	}
}

func TestClosureOperandListing(t *testing.T) {
	fn := compile(t, `
fun outer() {
  var x = 1;
  fun inner() { return x; }
  return inner;
}
`)
	var outer *object.Function
	for _, constant := range fn.Chunk.Constants {
		if f, ok := constant.AsObject().(*object.Function); ok && f.Name != nil && f.Name.Value == "outer" {
			outer = f
		}
	}
	require.NotNil(t, outer)

	var out bytes.Buffer
	Disassemble(outer.Chunk, "outer", &out)
	require.Contains(t, out.String(), "OP_CLOSURE")
	require.Contains(t, out.String(), "local 1")
}

func TestJumpTargets(t *testing.T) {
	fn := compile(t, "while (true) { 1; }")
	var out bytes.Buffer
	Disassemble(fn.Chunk, "loop", &out)
	listing := out.String()
	require.Contains(t, listing, op.GetInfo(op.JumpIfFalse).Name)
	require.Contains(t, listing, op.GetInfo(op.Loop).Name)
}
