package object

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableSetGet(t *testing.T) {
	h := NewHeap()
	var table Table

	key := h.Intern("answer")
	require.True(t, table.Set(key, Number(42)))
	require.False(t, table.Set(key, Number(43)), "second set of same key is not new")

	value, ok := table.Get(key)
	require.True(t, ok)
	require.Equal(t, Number(43), value)

	_, ok = table.Get(h.Intern("missing"))
	require.False(t, ok)
}

func TestTableDeleteLeavesTombstone(t *testing.T) {
	h := NewHeap()
	var table Table

	// Fill enough entries that probe sequences actually collide.
	keys := make([]*String, 32)
	for i := range keys {
		keys[i] = h.Intern(fmt.Sprintf("key%d", i))
		table.Set(keys[i], Number(float64(i)))
	}
	require.True(t, table.Delete(keys[7]))
	require.False(t, table.Delete(keys[7]))

	// Every other key must still be reachable through any tombstones.
	for i, key := range keys {
		if i == 7 {
			_, ok := table.Get(key)
			require.False(t, ok)
			continue
		}
		value, ok := table.Get(key)
		require.True(t, ok, "key%d", i)
		require.Equal(t, Number(float64(i)), value)
	}

	// A deleted slot is reusable.
	require.True(t, table.Set(keys[7], Number(7)))
	value, ok := table.Get(keys[7])
	require.True(t, ok)
	require.Equal(t, Number(7), value)
}

func TestTableGrowthKeepsEntries(t *testing.T) {
	h := NewHeap()
	var table Table
	for i := 0; i < 200; i++ {
		table.Set(h.Intern(fmt.Sprintf("k%d", i)), Number(float64(i)))
	}
	require.Equal(t, 200, table.Len())
	for i := 0; i < 200; i++ {
		value, ok := table.Get(h.Intern(fmt.Sprintf("k%d", i)))
		require.True(t, ok)
		require.Equal(t, Number(float64(i)), value)
	}
}

func TestTableAddAll(t *testing.T) {
	h := NewHeap()
	var src, dst Table
	src.Set(h.Intern("a"), Number(1))
	src.Set(h.Intern("b"), Number(2))
	dst.Set(h.Intern("b"), Number(99))

	dst.AddAll(&src)
	value, _ := dst.Get(h.Intern("a"))
	require.Equal(t, Number(1), value)
	// AddAll overwrites, which is what INHERIT relies on running before
	// subclass methods are installed.
	value, _ = dst.Get(h.Intern("b"))
	require.Equal(t, Number(2), value)
}

func TestFindString(t *testing.T) {
	h := NewHeap()
	s := h.Intern("needle")
	found := h.strings.FindString("needle", hashString("needle"))
	require.Same(t, s, found)
	require.Nil(t, h.strings.FindString("haystack", hashString("haystack")))
}
