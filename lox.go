// Package lox is a bytecode interpreter for the Lox scripting language: a
// single-pass compiler, a stack-based virtual machine with closures and
// classes, and a mark-sweep garbage collector.
//
//	err := lox.Interpret(`print "hello";`)
//
// A Lox instance can be reused for sequential interpretation; globals and
// interned strings persist across calls:
//
//	l := lox.New()
//	defer l.Free()
//	l.Interpret(`var greeting = "hello";`)
//	l.Interpret(`print greeting;`)
package lox

import (
	"errors"
	"io"

	"github.com/rs/zerolog"

	"github.com/cloudcmds/lox/errz"
	"github.com/cloudcmds/lox/object"
	"github.com/cloudcmds/lox/vm"
)

// Result classifies the outcome of an interpretation.
type Result int

const (
	// OK means the program compiled and ran to completion.
	OK Result = iota
	// CompileError means the source failed to compile.
	CompileError
	// RuntimeError means execution failed after a successful compile.
	RuntimeError
)

// Option configures an interpretation.
type Option func(*options)

type options struct {
	stdout      io.Writer
	trace       io.Writer
	dispatch    vm.DispatchMode
	heapOptions []object.HeapOption
}

func collectOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *options) vmOpts() []vm.Option {
	var opts []vm.Option
	if o.stdout != nil {
		opts = append(opts, vm.WithStdout(o.stdout))
	}
	if o.trace != nil {
		opts = append(opts, vm.WithTrace(o.trace))
	}
	opts = append(opts, vm.WithDispatch(o.dispatch))
	if len(o.heapOptions) > 0 {
		opts = append(opts, vm.WithHeap(object.NewHeap(o.heapOptions...)))
	}
	return opts
}

// WithStdout directs print output to w instead of os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithDispatch selects the VM dispatch strategy.
func WithDispatch(mode vm.DispatchMode) Option {
	return func(o *options) { o.dispatch = mode }
}

// WithTrace writes a per-instruction execution trace to w.
func WithTrace(w io.Writer) Option {
	return func(o *options) { o.trace = w }
}

// WithGCLogger directs garbage collector trace events to the given logger.
func WithGCLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.heapOptions = append(o.heapOptions, object.WithGCLogger(log))
	}
}

// WithStressGC collects on every allocation. Slow; intended for tests.
func WithStressGC() Option {
	return func(o *options) {
		o.heapOptions = append(o.heapOptions, object.WithStressGC())
	}
}

// Lox is an interpreter instance: one VM whose globals and intern table are
// shared by every Interpret call.
type Lox struct {
	vm *vm.VM
}

// New creates an interpreter.
func New(opts ...Option) *Lox {
	return &Lox{vm: vm.New(collectOptions(opts...).vmOpts()...)}
}

// Interpret compiles and runs one unit of source. The returned error is nil,
// a compile error aggregate, or an *errz.RuntimeError; classify it with
// ResultOf.
func (l *Lox) Interpret(source string) error {
	return l.vm.Interpret(source)
}

// VM exposes the underlying virtual machine.
func (l *Lox) VM() *vm.VM {
	return l.vm
}

// Free releases the interpreter's heap. The instance must not be used
// afterwards.
func (l *Lox) Free() {
	l.vm.Free()
}

// Interpret compiles and runs source in a fresh interpreter.
func Interpret(source string, opts ...Option) error {
	l := New(opts...)
	defer l.Free()
	return l.Interpret(source)
}

// ResultOf classifies an error returned by Interpret.
func ResultOf(err error) Result {
	if err == nil {
		return OK
	}
	var rerr *errz.RuntimeError
	if errors.As(err, &rerr) {
		return RuntimeError
	}
	return CompileError
}
