// Package compiler translates Lox source text directly to bytecode.
//
// # Single-Pass Strategy
//
// There is no syntax tree. A Pratt-style expression parser is fused with a
// recursive-descent statement parser, and both emit bytecode as they go.
// Scope resolution happens during the same pass: each function being
// compiled keeps a locals array mirroring the layout of its runtime stack
// window, and references that escape a function are resolved into upvalues
// that the emitted CLOSURE instruction captures at runtime.
//
// The compiler chain (one context per enclosing function) registers itself
// as a GC root source for the duration of compilation, since the functions
// it is filling in hold constants that nothing else references yet.
//
// # Error Recovery
//
// Parse errors put the compiler into panic mode: further errors are
// suppressed while it discards tokens until a statement boundary, then
// parsing resumes so independent errors in later statements still surface.
// All collected errors are aggregated into the returned error.
package compiler

import (
	"math"

	"github.com/hashicorp/go-multierror"

	"github.com/cloudcmds/lox/errz"
	"github.com/cloudcmds/lox/object"
	"github.com/cloudcmds/lox/op"
	"github.com/cloudcmds/lox/scanner"
	"github.com/cloudcmds/lox/token"
)

const (
	// maxLocals is the number of local slots addressable by one frame, fixed
	// by the 8-bit operand of GET_LOCAL and SET_LOCAL.
	maxLocals = 256

	// maxUpvalues is the number of upvalues one function can capture, fixed
	// by the 8-bit index operand following CLOSURE.
	maxUpvalues = 256

	// maxConstants is the size of a chunk's constant pool, fixed by the
	// 8-bit constant index operand.
	maxConstants = 256

	// maxArgs is the most arguments (and parameters) a call can carry.
	maxArgs = 255
)

// FunctionKind describes what sort of function body is being compiled.
type FunctionKind int

const (
	KindScript FunctionKind = iota
	KindFunction
	KindMethod
	KindInitializer
)

// local is a declared local variable. depth is -1 between declaration and
// the end of its initializer, which is what stops `var a = a;` from reading
// the uninitialized slot.
type local struct {
	name       token.Token
	depth      int
	isCaptured bool
}

// upvalueRef records one captured variable: either a local slot in the
// immediately enclosing function, or an upvalue index in it.
type upvalueRef struct {
	index   uint8
	isLocal bool
}

// funcCompiler is the per-function compilation context. Contexts form a
// chain through enclosing, innermost first.
type funcCompiler struct {
	enclosing  *funcCompiler
	function   *object.Function
	kind       FunctionKind
	locals     [maxLocals]local
	localCount int
	upvalues   [maxUpvalues]upvalueRef
	scopeDepth int
}

// classCompiler tracks the innermost class declaration being compiled, for
// deciding whether this and super are legal.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler holds the parser state shared by the whole compilation.
type Compiler struct {
	scanner      *scanner.Scanner
	heap         *object.Heap
	current      *funcCompiler
	currentClass *classCompiler
	previous     token.Token
	next         token.Token
	hadError     bool
	panicMode    bool
	errs         *multierror.Error
}

// Compile compiles Lox source to a top-level function. On any parse error it
// returns nil and the aggregate of every error surfaced across panic-mode
// recoveries.
func Compile(source string, heap *object.Heap) (*object.Function, error) {
	c := &Compiler{
		scanner: scanner.New(source),
		heap:    heap,
	}

	// The in-progress function chain must survive collections triggered by
	// interning identifier and literal strings.
	heap.AddRoots(c)
	defer heap.RemoveRoots(c)

	c.initFuncCompiler(&funcCompiler{}, KindScript)
	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	fn := c.endFuncCompiler()
	if c.hadError {
		return nil, c.errs.ErrorOrNil()
	}
	return fn, nil
}

// MarkRoots marks every function in the compiler chain. Implements
// object.RootSource.
func (c *Compiler) MarkRoots(h *object.Heap) {
	for fc := c.current; fc != nil; fc = fc.enclosing {
		if fc.function != nil {
			h.MarkObject(fc.function)
		}
	}
}

func (c *Compiler) initFuncCompiler(fc *funcCompiler, kind FunctionKind) {
	fc.enclosing = c.current
	fc.kind = kind
	fc.function = c.heap.NewFunction()
	c.current = fc
	if kind != KindScript {
		fc.function.Name = c.heap.Intern(c.previous.Lexeme)
	}

	// Slot zero belongs to the VM: the receiver in methods, the closure
	// itself otherwise. Naming it "this" makes method bodies resolve the
	// receiver as an ordinary local.
	slot := &fc.locals[fc.localCount]
	fc.localCount++
	slot.depth = 0
	if kind != KindFunction {
		slot.name = token.Token{Type: token.Identifier, Lexeme: "this"}
	}
}

func (c *Compiler) endFuncCompiler() *object.Function {
	c.emitReturn()
	fn := c.current.function
	c.current = c.current.enclosing
	return fn
}

// ---------------------------------------------------------------------------
// Parser plumbing

func (c *Compiler) advance() {
	c.previous = c.next
	for {
		c.next = c.scanner.ScanToken()
		if c.next.Type != token.Error {
			break
		}
		c.errorAtCurrent(c.next.Lexeme)
	}
}

func (c *Compiler) consume(typ token.Type, message string) {
	if c.next.Type == typ {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) check(typ token.Type) bool {
	return c.next.Type == typ
}

func (c *Compiler) match(typ token.Type) bool {
	if !c.check(typ) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) errorAt(tok token.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	cerr := &errz.CompileError{Line: tok.Line, Message: message}
	switch tok.Type {
	case token.EOF:
		cerr.AtEnd = true
	case token.Error:
		// The lexeme is the scanner's message, not source text.
	default:
		cerr.Lexeme = tok.Lexeme
	}
	c.errs = multierror.Append(c.errs, cerr)
}

func (c *Compiler) error(message string) {
	c.errorAt(c.previous, message)
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.next, message)
}

// synchronize discards tokens until a statement boundary so that one error
// does not cascade into spurious reports for the rest of the statement.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.next.Type != token.EOF {
		if c.previous.Type == token.Semicolon {
			return
		}
		switch c.next.Type {
		case token.Class, token.Fun, token.Var, token.For,
			token.If, token.While, token.Print, token.Return:
			return
		}
		c.advance()
	}
}

// ---------------------------------------------------------------------------
// Bytecode emission

func (c *Compiler) currentChunk() *object.Chunk {
	return c.current.function.Chunk
}

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitOp(code op.Code) {
	c.emitByte(byte(code))
}

func (c *Compiler) emitOps(a, b op.Code) {
	c.emitOp(a)
	c.emitOp(b)
}

func (c *Compiler) emitOpByte(code op.Code, operand byte) {
	c.emitOp(code)
	c.emitByte(operand)
}

func (c *Compiler) emitReturn() {
	if c.current.kind == KindInitializer {
		c.emitOpByte(op.GetLocal, 0)
	} else {
		c.emitOp(op.Nil)
	}
	c.emitOp(op.Return)
}

func (c *Compiler) makeConstant(value object.Value) byte {
	index := c.currentChunk().AddConstant(value)
	if index >= maxConstants {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(index)
}

func (c *Compiler) emitConstant(value object.Value) {
	c.emitOpByte(op.Constant, c.makeConstant(value))
}

// emitJump emits a forward branch with a placeholder offset and returns the
// offset's position for patchJump.
func (c *Compiler) emitJump(code op.Code) int {
	c.emitOp(code)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

// patchJump back-fills a forward branch with the distance from just past its
// operand to the current end of the chunk.
func (c *Compiler) patchJump(offset int) {
	chunk := c.currentChunk()
	jump := len(chunk.Code) - offset - 2
	if jump > math.MaxUint16 {
		c.error("Too much code to jump over.")
	}
	chunk.Code[offset] = byte(jump >> 8)
	chunk.Code[offset+1] = byte(jump)
}

// emitLoop emits a backward branch to loopStart, offset relative to the
// instruction after the operand.
func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(op.Loop)
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > math.MaxUint16 {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// ---------------------------------------------------------------------------
// Scopes and variables

func (c *Compiler) beginScope() {
	c.current.scopeDepth++
}

func (c *Compiler) endScope() {
	fc := c.current
	fc.scopeDepth--
	for fc.localCount > 0 && fc.locals[fc.localCount-1].depth > fc.scopeDepth {
		if fc.locals[fc.localCount-1].isCaptured {
			c.emitOp(op.CloseUpvalue)
		} else {
			c.emitOp(op.Pop)
		}
		fc.localCount--
	}
}

func (c *Compiler) identifierConstant(name token.Token) byte {
	return c.makeConstant(object.ObjectValue(c.heap.Intern(name.Lexeme)))
}

func identifiersEqual(a, b token.Token) bool {
	return a.Lexeme == b.Lexeme
}

func (c *Compiler) addLocal(name token.Token) {
	fc := c.current
	if fc.localCount == maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	fc.locals[fc.localCount] = local{name: name, depth: -1}
	fc.localCount++
}

// declareVariable records a new local in the current scope. Globals are late
// bound and skip this entirely.
func (c *Compiler) declareVariable() {
	fc := c.current
	if fc.scopeDepth == 0 {
		return
	}
	name := c.previous
	for i := fc.localCount - 1; i >= 0; i-- {
		l := &fc.locals[i]
		if l.depth != -1 && l.depth < fc.scopeDepth {
			break
		}
		if identifiersEqual(name, l.name) {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) parseVariable(errorMessage string) byte {
	c.consume(token.Identifier, errorMessage)
	c.declareVariable()
	if c.current.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) markInitialized() {
	fc := c.current
	if fc.scopeDepth == 0 {
		return
	}
	fc.locals[fc.localCount-1].depth = fc.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.current.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(op.DefineGlobal, global)
}

// resolveLocal finds a local by name in the given context, or -1. Reading a
// local whose depth is still -1 means the variable's own initializer
// mentions it.
func (c *Compiler) resolveLocal(fc *funcCompiler, name token.Token) int {
	for i := fc.localCount - 1; i >= 0; i-- {
		l := &fc.locals[i]
		if identifiersEqual(name, l.name) {
			if l.depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// addUpvalue allocates (or finds) an upvalue slot in fc. isLocal
// distinguishes capturing an enclosing local from relaying an enclosing
// upvalue.
func (c *Compiler) addUpvalue(fc *funcCompiler, index uint8, isLocal bool) int {
	count := fc.function.UpvalueCount
	for i := 0; i < count; i++ {
		uv := &fc.upvalues[i]
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if count == maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	fc.upvalues[count] = upvalueRef{index: index, isLocal: isLocal}
	fc.function.UpvalueCount++
	return count
}

// resolveUpvalue searches enclosing contexts for a name. A hit in the
// immediate enclosing function captures that local; deeper hits recurse,
// threading the capture through every intermediate function's upvalues.
func (c *Compiler) resolveUpvalue(fc *funcCompiler, name token.Token) int {
	if fc.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(fc.enclosing, name); local != -1 {
		fc.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fc, uint8(local), true)
	}
	if upvalue := c.resolveUpvalue(fc.enclosing, name); upvalue != -1 {
		return c.addUpvalue(fc, uint8(upvalue), false)
	}
	return -1
}

// ---------------------------------------------------------------------------
// Declarations and statements

func (c *Compiler) declaration() {
	switch {
	case c.match(token.Class):
		c.classDeclaration()
	case c.match(token.Fun):
		c.funDeclaration()
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(token.Equal) {
		c.expression()
	} else {
		c.emitOp(op.Nil)
	}
	c.consume(token.Semicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	// A function may refer to itself by name, so it is initialized before
	// its body compiles.
	c.markInitialized()
	c.function(KindFunction)
	c.defineVariable(global)
}

// function compiles a parameter list and body in a fresh context, then emits
// the CLOSURE instruction with its upvalue capture operands.
func (c *Compiler) function(kind FunctionKind) {
	fc := &funcCompiler{}
	c.initFuncCompiler(fc, kind)
	c.beginScope()

	c.consume(token.LeftParen, "Expect '(' after function name.")
	if !c.check(token.RightParen) {
		for {
			fc.function.Arity++
			if fc.function.Arity > maxArgs {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after parameters.")
	c.consume(token.LeftBrace, "Expect '{' before function body.")
	c.block()

	fn := c.endFuncCompiler()
	c.emitOpByte(op.Closure, c.makeConstant(object.ObjectValue(fn)))
	for i := 0; i < fn.UpvalueCount; i++ {
		if fc.upvalues[i].isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(fc.upvalues[i].index)
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(token.Identifier, "Expect class name.")
	className := c.previous
	nameConstant := c.identifierConstant(c.previous)
	c.declareVariable()
	c.emitOpByte(op.Class, nameConstant)
	c.defineVariable(nameConstant)

	cc := &classCompiler{enclosing: c.currentClass}
	c.currentClass = cc

	if c.match(token.Less) {
		c.consume(token.Identifier, "Expect superclass name.")
		c.variable(false)
		if identifiersEqual(className, c.previous) {
			c.error("A class can't inherit from itself.")
		}
		// The superclass lives in a hidden local named "super" so that
		// method bodies can capture it as an upvalue.
		c.beginScope()
		c.addLocal(syntheticToken("super"))
		c.defineVariable(0)
		c.namedVariable(className, false)
		c.emitOp(op.Inherit)
		cc.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(token.LeftBrace, "Expect '{' before class body.")
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RightBrace, "Expect '}' after class body.")
	c.emitOp(op.Pop)

	if cc.hasSuperclass {
		c.endScope()
	}
	c.currentClass = cc.enclosing
}

func (c *Compiler) method() {
	c.consume(token.Identifier, "Expect method name.")
	constant := c.identifierConstant(c.previous)
	kind := KindMethod
	if c.previous.Lexeme == "init" {
		kind = KindInitializer
	}
	c.function(kind)
	c.emitOpByte(op.Method, constant)
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.Print):
		c.printStatement()
	case c.match(token.For):
		c.forStatement()
	case c.match(token.If):
		c.ifStatement()
	case c.match(token.Return):
		c.returnStatement()
	case c.match(token.While):
		c.whileStatement()
	case c.match(token.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RightBrace, "Expect '}' after block.")
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after expression.")
	c.emitOp(op.Pop)
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after value.")
	c.emitOp(op.Print)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(op.JumpIfFalse)
	c.emitOp(op.Pop)
	c.statement()
	elseJump := c.emitJump(op.Jump)

	c.patchJump(thenJump)
	c.emitOp(op.Pop)
	if c.match(token.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.consume(token.LeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(op.JumpIfFalse)
	c.emitOp(op.Pop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(op.Pop)
}

// forStatement desugars the three clauses into jumps. The loop variable is
// hoisted to a scope surrounding the whole loop, so closures created in the
// body all capture the same binding.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LeftParen, "Expect '(' after 'for'.")
	switch {
	case c.match(token.Semicolon):
		// No initializer.
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.match(token.Semicolon) {
		c.expression()
		c.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(op.JumpIfFalse)
		c.emitOp(op.Pop)
	}

	if !c.match(token.RightParen) {
		bodyJump := c.emitJump(op.Jump)
		incrementStart := len(c.currentChunk().Code)
		c.expression()
		c.emitOp(op.Pop)
		c.consume(token.RightParen, "Expect ')' after for clauses.")
		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(op.Pop)
	}
	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.current.kind == KindScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.Semicolon) {
		c.emitReturn()
		return
	}
	if c.current.kind == KindInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after return value.")
	c.emitOp(op.Return)
}

func syntheticToken(text string) token.Token {
	return token.Token{Type: token.Identifier, Lexeme: text}
}
