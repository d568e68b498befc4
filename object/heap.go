package object

import (
	"github.com/rs/zerolog"
)

const (
	// heapGrowFactor scales the next collection threshold after each GC.
	heapGrowFactor = 2

	// initialGCThreshold is the allocation volume that triggers the first
	// collection.
	initialGCThreshold = 1024 * 1024
)

// Baseline byte charges per object kind. Go does not expose real allocation
// sizes, so the heap charges a fixed header cost plus the payload length it
// can see at allocation time. The charge is recorded on the object header
// and credited back verbatim when the object is swept, keeping the
// accounting exact across collections.
const (
	sizeString      = 40
	sizeFunction    = 88
	sizeNative      = 32
	sizeClosure     = 48
	sizeUpvalue     = 56
	sizeClass       = 64
	sizeInstance    = 56
	sizeBoundMethod = 48
)

// RootSource is implemented by anything that holds references the collector
// must treat as roots: the VM (stack, frames, globals, open upvalues) and
// the compiler (its chain of in-progress functions).
type RootSource interface {
	MarkRoots(h *Heap)
}

// Heap owns every Lox heap object. Allocation threads objects onto an
// intrusive list; a tracing mark-sweep collector reclaims the unreachable
// ones once allocation volume crosses a threshold. The intern set is weak:
// it never keeps a string alive on its own.
type Heap struct {
	objects        HeapObject
	strings        Table
	bytesAllocated int
	nextGC         int
	gray           []HeapObject
	roots          []RootSource
	stress         bool
	log            zerolog.Logger
}

// HeapOption configures a Heap.
type HeapOption func(*Heap)

// WithGCLogger directs GC trace events to the given logger. Collection
// begin/end and per-object frees log at debug level.
func WithGCLogger(log zerolog.Logger) HeapOption {
	return func(h *Heap) { h.log = log }
}

// WithStressGC makes the heap collect on every allocation. Useful in tests
// to surface objects that are reachable only through unrooted references.
func WithStressGC() HeapOption {
	return func(h *Heap) { h.stress = true }
}

// NewHeap creates an empty heap.
func NewHeap(opts ...HeapOption) *Heap {
	h := &Heap{
		nextGC: initialGCThreshold,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddRoots registers a root source with the collector.
func (h *Heap) AddRoots(rs RootSource) {
	h.roots = append(h.roots, rs)
}

// RemoveRoots unregisters a previously added root source.
func (h *Heap) RemoveRoots(rs RootSource) {
	for i, r := range h.roots {
		if r == rs {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// BytesAllocated returns the heap's current charged allocation volume.
func (h *Heap) BytesAllocated() int {
	return h.bytesAllocated
}

// register charges the allocation, runs a collection if due, and links the
// object into the heap. The object is not yet linked while a collection
// runs, so it cannot be swept; its children must already be reachable from
// the roots, which is the caller's obligation.
func (h *Heap) register(obj HeapObject, size int) {
	h.bytesAllocated += size
	if h.stress || h.bytesAllocated > h.nextGC {
		h.Collect()
	}
	header := obj.Header()
	header.size = size
	header.next = h.objects
	h.objects = obj
}

// Intern returns the canonical *String for the given contents, allocating
// one if no live string has them.
func (h *Heap) Intern(chars string) *String {
	hash := hashString(chars)
	if interned := h.strings.FindString(chars, hash); interned != nil {
		return interned
	}
	s := &String{Obj: Obj{kind: KindString}, Value: chars, Hash: hash}
	h.register(s, sizeString+len(chars))
	h.strings.Set(s, NilValue)
	return s
}

// NewFunction allocates an empty function with a fresh chunk.
func (h *Heap) NewFunction() *Function {
	f := &Function{Obj: Obj{kind: KindFunction}, Chunk: NewChunk()}
	h.register(f, sizeFunction)
	return f
}

// NewNative wraps a host function.
func (h *Heap) NewNative(fn NativeFn) *Native {
	n := &Native{Obj: Obj{kind: KindNative}, Fn: fn}
	h.register(n, sizeNative)
	return n
}

// NewClosure allocates a closure for the given function with room for its
// upvalues.
func (h *Heap) NewClosure(fn *Function) *Closure {
	c := &Closure{
		Obj:      Obj{kind: KindClosure},
		Function: fn,
		Upvalues: make([]*Upvalue, fn.UpvalueCount),
	}
	h.register(c, sizeClosure+8*fn.UpvalueCount)
	return c
}

// NewUpvalue allocates an open upvalue pointing at the given stack slot.
func (h *Heap) NewUpvalue(location *Value, slot int) *Upvalue {
	u := &Upvalue{Obj: Obj{kind: KindUpvalue}, Location: location, Slot: slot}
	h.register(u, sizeUpvalue)
	return u
}

// NewClass allocates a class with an empty method table.
func (h *Heap) NewClass(name *String) *Class {
	c := &Class{Obj: Obj{kind: KindClass}, Name: name}
	h.register(c, sizeClass)
	return c
}

// NewInstance allocates an instance with an empty field table.
func (h *Heap) NewInstance(class *Class) *Instance {
	i := &Instance{Obj: Obj{kind: KindInstance}, Class: class}
	h.register(i, sizeInstance)
	return i
}

// NewBoundMethod pairs a receiver with a method closure.
func (h *Heap) NewBoundMethod(receiver Value, method *Closure) *BoundMethod {
	b := &BoundMethod{Obj: Obj{kind: KindBoundMethod}, Receiver: receiver, Method: method}
	h.register(b, sizeBoundMethod)
	return b
}

// MarkValue marks a value's referent, if it has one.
func (h *Heap) MarkValue(v Value) {
	if v.IsObject() {
		h.MarkObject(v.AsObject())
	}
}

// MarkObject colors an object gray: marked and queued for child scanning.
func (h *Heap) MarkObject(obj HeapObject) {
	if obj == nil {
		return
	}
	header := obj.Header()
	if header.marked {
		return
	}
	header.marked = true
	h.gray = append(h.gray, obj)
}

// MarkTable marks every key and value in a strong table.
func (h *Heap) MarkTable(t *Table) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			h.MarkObject(e.key)
		}
		h.MarkValue(e.value)
	}
}

// blacken scans an object's children, coloring it black.
func (h *Heap) blacken(obj HeapObject) {
	switch obj := obj.(type) {
	case *String, *Native:
		// No outgoing references.
	case *Upvalue:
		h.MarkValue(obj.Closed)
	case *Function:
		if obj.Name != nil {
			h.MarkObject(obj.Name)
		}
		for _, constant := range obj.Chunk.Constants {
			h.MarkValue(constant)
		}
	case *Closure:
		h.MarkObject(obj.Function)
		for _, upvalue := range obj.Upvalues {
			// Slots are filled one at a time while the closure is already
			// live on the stack, so a collection can see trailing nils.
			if upvalue != nil {
				h.MarkObject(upvalue)
			}
		}
	case *Class:
		h.MarkObject(obj.Name)
		h.MarkTable(&obj.Methods)
	case *Instance:
		h.MarkObject(obj.Class)
		h.MarkTable(&obj.Fields)
	case *BoundMethod:
		h.MarkValue(obj.Receiver)
		h.MarkObject(obj.Method)
	}
}

// Collect runs a full mark-sweep collection and returns the number of bytes
// freed.
func (h *Heap) Collect() int {
	before := h.bytesAllocated
	h.log.Debug().Int("bytes_allocated", before).Msg("gc begin")

	// Mark phase: roots first, then trace until the gray stack drains.
	for _, rs := range h.roots {
		rs.MarkRoots(h)
	}
	for len(h.gray) > 0 {
		obj := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(obj)
	}

	// The intern set is weak: evict strings that did not survive marking,
	// then sweep frees them along with everything else unmarked.
	h.strings.RemoveWhite()
	h.sweep()

	h.nextGC = h.bytesAllocated * heapGrowFactor
	freed := before - h.bytesAllocated
	h.log.Debug().
		Int("bytes_freed", freed).
		Int("bytes_allocated", h.bytesAllocated).
		Int("next_gc", h.nextGC).
		Msg("gc end")
	return freed
}

// sweep walks the object list, unlinking and releasing unmarked objects and
// clearing the mark bit on survivors for the next cycle.
func (h *Heap) sweep() {
	var previous HeapObject
	obj := h.objects
	for obj != nil {
		header := obj.Header()
		if header.marked {
			header.marked = false
			previous = obj
			obj = header.next
			continue
		}
		unreached := obj
		obj = header.next
		if previous == nil {
			h.objects = obj
		} else {
			previous.Header().next = obj
		}
		h.free(unreached)
	}
}

// free credits the object's charge back and drops its payload references so
// the host allocator can reclaim them.
func (h *Heap) free(obj HeapObject) {
	header := obj.Header()
	h.bytesAllocated -= header.size
	if e := h.log.Debug(); e.Enabled() {
		e.Int("size", header.size).Str("object", obj.String()).Msg("gc free")
	}
	header.next = nil
	switch obj := obj.(type) {
	case *Function:
		obj.Chunk = nil
		obj.Name = nil
	case *Closure:
		obj.Upvalues = nil
		obj.Function = nil
	case *Class:
		obj.Methods.Reset()
	case *Instance:
		obj.Fields.Reset()
	case *Upvalue:
		obj.Location = nil
		obj.Next = nil
	}
}

// Free releases the whole heap: every object, the intern set, and the byte
// accounting. Used at VM teardown.
func (h *Heap) Free() {
	obj := h.objects
	for obj != nil {
		next := obj.Header().next
		h.free(obj)
		obj = next
	}
	h.objects = nil
	h.strings.Reset()
	h.bytesAllocated = 0
	h.nextGC = initialGCThreshold
}

// hashString computes the 32-bit FNV-1a hash of the given string.
func hashString(chars string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(chars); i++ {
		hash ^= uint32(chars[i])
		hash *= 16777619
	}
	return hash
}
