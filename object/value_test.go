package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueEquality(t *testing.T) {
	require.True(t, NilValue.Equals(NilValue))
	require.True(t, Bool(true).Equals(Bool(true)))
	require.False(t, Bool(true).Equals(Bool(false)))
	require.True(t, Number(1.5).Equals(Number(1.5)))
	require.False(t, Number(1).Equals(Number(2)))

	// Values of different kinds are never equal.
	require.False(t, NilValue.Equals(Bool(false)))
	require.False(t, Number(0).Equals(Bool(false)))
}

func TestObjectEqualityIsIdentity(t *testing.T) {
	h := NewHeap()
	fn1 := h.NewFunction()
	fn2 := h.NewFunction()
	require.True(t, ObjectValue(fn1).Equals(ObjectValue(fn1)))
	require.False(t, ObjectValue(fn1).Equals(ObjectValue(fn2)))
}

func TestInternedStringEquality(t *testing.T) {
	h := NewHeap()
	a := h.Intern("foobar")
	b := h.Intern("foo" + "bar")
	// Interning makes identity coincide with content equality.
	require.Same(t, a, b)
	require.True(t, ObjectValue(a).Equals(ObjectValue(b)))
}

func TestFalseyness(t *testing.T) {
	require.True(t, NilValue.IsFalsey())
	require.True(t, Bool(false).IsFalsey())
	require.False(t, Bool(true).IsFalsey())
	require.False(t, Number(0).IsFalsey())
	h := NewHeap()
	require.False(t, ObjectValue(h.Intern("")).IsFalsey())
}

func TestValueString(t *testing.T) {
	require.Equal(t, "nil", NilValue.String())
	require.Equal(t, "true", Bool(true).String())
	require.Equal(t, "false", Bool(false).String())
	require.Equal(t, "5", Number(5).String())
	require.Equal(t, "2.5", Number(2.5).String())

	h := NewHeap()
	require.Equal(t, "hi", ObjectValue(h.Intern("hi")).String())

	fn := h.NewFunction()
	require.Equal(t, "<script>", ObjectValue(fn).String())
	fn.Name = h.Intern("f")
	require.Equal(t, "<fn f>", ObjectValue(fn).String())

	native := h.NewNative(func(int, []Value) Value { return NilValue })
	require.Equal(t, "<native fn>", ObjectValue(native).String())

	class := h.NewClass(h.Intern("Point"))
	require.Equal(t, "Point", ObjectValue(class).String())
	instance := h.NewInstance(class)
	require.Equal(t, "Point instance", ObjectValue(instance).String())
}
