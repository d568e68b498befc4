package builtins

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/lox/object"
)

func TestClock(t *testing.T) {
	clock := Clock(time.Now().Add(-2 * time.Second))
	result := clock(0, nil)
	require.True(t, result.IsNumber())
	require.GreaterOrEqual(t, result.AsNumber(), 2.0)
}

func TestGC(t *testing.T) {
	heap := object.NewHeap()
	heap.Intern("garbage")
	gc := GC(heap)

	freed := gc(0, nil)
	require.True(t, freed.IsNumber())
	require.Greater(t, freed.AsNumber(), 0.0)

	// Nothing was allocated since, so a second collection frees nothing.
	require.Equal(t, 0.0, gc(0, nil).AsNumber())
}

func TestGCHeapSize(t *testing.T) {
	heap := object.NewHeap()
	size := GCHeapSize(heap)
	require.Equal(t, 0.0, size(0, nil).AsNumber())
	heap.Intern("some bytes")
	require.Greater(t, size(0, nil).AsNumber(), 0.0)
}

func TestAll(t *testing.T) {
	heap := object.NewHeap()
	natives := All(heap, time.Now(), func() {})
	for _, name := range []string{"clock", "exit", "gc", "gcHeapSize"} {
		require.Contains(t, natives, name)
	}
}
