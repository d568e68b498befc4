// Package builtins provides the native functions installed into every VM's
// global scope.
package builtins

import (
	"os"
	"time"

	"github.com/cloudcmds/lox/object"
)

// Clock returns a native reporting seconds elapsed since start.
func Clock(start time.Time) object.NativeFn {
	return func(argCount int, args []object.Value) object.Value {
		return object.Number(time.Since(start).Seconds())
	}
}

// Exit returns a native that runs the cleanup function and terminates the
// process with code 0.
func Exit(cleanup func()) object.NativeFn {
	return func(argCount int, args []object.Value) object.Value {
		cleanup()
		os.Exit(0)
		return object.NilValue
	}
}

// GC returns a native that runs a full collection and reports the number of
// bytes freed.
func GC(heap *object.Heap) object.NativeFn {
	return func(argCount int, args []object.Value) object.Value {
		return object.Number(float64(heap.Collect()))
	}
}

// GCHeapSize returns a native reporting the heap's current allocation
// volume in bytes.
func GCHeapSize(heap *object.Heap) object.NativeFn {
	return func(argCount int, args []object.Value) object.Value {
		return object.Number(float64(heap.BytesAllocated()))
	}
}

// All returns the full set of natives, keyed by the global name each is
// installed under.
func All(heap *object.Heap, start time.Time, cleanup func()) map[string]object.NativeFn {
	return map[string]object.NativeFn{
		"clock":      Clock(start),
		"exit":       Exit(cleanup),
		"gc":         GC(heap),
		"gcHeapSize": GCHeapSize(heap),
	}
}
