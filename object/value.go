// Package object provides the Lox value model: the tagged Value union, the
// heap object variants, the string-keyed hash table, and the Heap that
// allocates and garbage-collects objects.
//
// Values are small tagged structs passed by value. Heap objects are pointers
// whose identity is their equality, except strings, which are interned so
// that equal contents always share one heap object.
package object

import (
	"strconv"
)

// ValueKind discriminates the Value union.
type ValueKind uint8

const (
	ValNil ValueKind = iota
	ValBool
	ValNumber
	ValObject
)

// Value is a Lox value: nil, a boolean, an IEEE-754 double, or a reference
// to a heap object.
type Value struct {
	kind ValueKind
	num  float64
	obj  HeapObject
}

// NilValue is the Lox nil.
var NilValue = Value{kind: ValNil}

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return Value{kind: ValBool, num: 1}
	}
	return Value{kind: ValBool}
}

// Number returns a numeric value.
func Number(f float64) Value {
	return Value{kind: ValNumber, num: f}
}

// ObjectValue returns a value referencing the given heap object.
func ObjectValue(obj HeapObject) Value {
	return Value{kind: ValObject, obj: obj}
}

// Kind returns the value's kind tag.
func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNil() bool    { return v.kind == ValNil }
func (v Value) IsBool() bool   { return v.kind == ValBool }
func (v Value) IsNumber() bool { return v.kind == ValNumber }
func (v Value) IsObject() bool { return v.kind == ValObject }

// AsBool returns the boolean payload. Only valid when IsBool is true.
func (v Value) AsBool() bool { return v.num != 0 }

// AsNumber returns the numeric payload. Only valid when IsNumber is true.
func (v Value) AsNumber() float64 { return v.num }

// AsObject returns the heap object payload. Only valid when IsObject is true.
func (v Value) AsObject() HeapObject { return v.obj }

// IsFalsey reports whether the value is nil or false. Every other value,
// including 0 and "", is truthy.
func (v Value) IsFalsey() bool {
	return v.kind == ValNil || (v.kind == ValBool && v.num == 0)
}

// AsString returns the value as a *String if it is one.
func (v Value) AsString() (*String, bool) {
	if v.kind != ValObject {
		return nil, false
	}
	s, ok := v.obj.(*String)
	return s, ok
}

// Equals reports Lox equality: structural for primitives, identity for heap
// objects. Interning makes identity and content equality coincide for
// strings.
func (v Value) Equals(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValNil:
		return true
	case ValBool:
		return v.AsBool() == other.AsBool()
	case ValNumber:
		return v.num == other.num
	case ValObject:
		return v.obj == other.obj
	default:
		return false
	}
}

// String formats the value the way the print statement does.
func (v Value) String() string {
	switch v.kind {
	case ValNil:
		return "nil"
	case ValBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case ValNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case ValObject:
		return v.obj.String()
	default:
		return "unknown"
	}
}
