// Package errz defines the structured error types produced by the compiler
// and the virtual machine.
package errz

import (
	"fmt"
	"strings"
)

// Kind represents the category of an error.
type Kind int

const (
	// KindSyntax indicates a lex or parse error.
	KindSyntax Kind = iota
	// KindType indicates an operation applied to the wrong kind of value.
	KindType
	// KindName indicates an undefined variable or property.
	KindName
	// KindArity indicates a call with the wrong number of arguments.
	KindArity
	// KindRuntime indicates any other runtime failure.
	KindRuntime
)

// String returns the string representation of the error kind.
func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax error"
	case KindType:
		return "type error"
	case KindName:
		return "name error"
	case KindArity:
		return "arity error"
	case KindRuntime:
		return "runtime error"
	default:
		return "error"
	}
}

// CompileError is a single lex or parse error with its source line and the
// offending lexeme. Panic-mode recovery lets one compilation surface many of
// these; they are aggregated with go-multierror by the compiler.
type CompileError struct {
	Line    int
	Lexeme  string
	AtEnd   bool
	Message string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[line %d] Error", e.Line)
	if e.AtEnd {
		b.WriteString(" at end")
	} else if e.Lexeme != "" {
		fmt.Fprintf(&b, " at '%s'", e.Lexeme)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// StackFrame is one guest call frame in a runtime error backtrace.
type StackFrame struct {
	// Function is the function name, or "script" for top-level code.
	Function string
	// Line is the source line of the frame's current instruction.
	Line int
}

// RuntimeError is a guest runtime failure with a backtrace of the call
// frames that were live when it was raised.
type RuntimeError struct {
	Kind    Kind
	Message string
	Stack   []StackFrame
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return e.Message
}

// Backtrace formats the captured stack, innermost frame first, in the form
//
//	[line 4] in inner()
//	[line 9] in script
func (e *RuntimeError) Backtrace() string {
	var b strings.Builder
	for _, frame := range e.Stack {
		if frame.Function == "script" {
			fmt.Fprintf(&b, "[line %d] in script\n", frame.Line)
		} else {
			fmt.Fprintf(&b, "[line %d] in %s()\n", frame.Line, frame.Function)
		}
	}
	return b.String()
}

// FriendlyErrorMessage returns the message followed by the backtrace.
func (e *RuntimeError) FriendlyErrorMessage() string {
	return e.Message + "\n" + e.Backtrace()
}
