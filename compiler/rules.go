package compiler

import (
	"strconv"
	"strings"

	"github.com/cloudcmds/lox/object"
	"github.com/cloudcmds/lox/op"
	"github.com/cloudcmds/lox/token"
)

// precedence orders Lox operators from loosest to tightest binding.
type precedence int

const (
	precNone precedence = iota
	precAssignment            // = and ?:
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

// parseRule drives the Pratt parser: what to do when a token starts an
// expression, what to do when it appears after a left operand, and how
// tightly it binds.
type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

var rules [token.TypeCount]parseRule

func init() {
	rules[token.LeftParen] = parseRule{(*Compiler).grouping, (*Compiler).call, precCall}
	rules[token.Dot] = parseRule{nil, (*Compiler).dot, precCall}
	rules[token.Minus] = parseRule{(*Compiler).unary, (*Compiler).binary, precTerm}
	rules[token.Plus] = parseRule{nil, (*Compiler).binary, precTerm}
	rules[token.Slash] = parseRule{nil, (*Compiler).binary, precFactor}
	rules[token.Star] = parseRule{nil, (*Compiler).binary, precFactor}
	rules[token.Question] = parseRule{nil, (*Compiler).ternary, precAssignment}
	rules[token.Bang] = parseRule{(*Compiler).unary, nil, precNone}
	rules[token.BangEqual] = parseRule{nil, (*Compiler).binary, precEquality}
	rules[token.EqualEqual] = parseRule{nil, (*Compiler).binary, precEquality}
	rules[token.Greater] = parseRule{nil, (*Compiler).binary, precComparison}
	rules[token.GreaterEqual] = parseRule{nil, (*Compiler).binary, precComparison}
	rules[token.Less] = parseRule{nil, (*Compiler).binary, precComparison}
	rules[token.LessEqual] = parseRule{nil, (*Compiler).binary, precComparison}
	rules[token.Identifier] = parseRule{(*Compiler).variable, nil, precNone}
	rules[token.String] = parseRule{(*Compiler).stringLiteral, nil, precNone}
	rules[token.Number] = parseRule{(*Compiler).number, nil, precNone}
	rules[token.And] = parseRule{nil, (*Compiler).and, precAnd}
	rules[token.Or] = parseRule{nil, (*Compiler).or, precOr}
	rules[token.False] = parseRule{(*Compiler).literal, nil, precNone}
	rules[token.True] = parseRule{(*Compiler).literal, nil, precNone}
	rules[token.Nil] = parseRule{(*Compiler).literal, nil, precNone}
	rules[token.This] = parseRule{(*Compiler).this, nil, precNone}
	rules[token.Super] = parseRule{(*Compiler).super, nil, precNone}
}

// parsePrecedence parses an expression at the given precedence or tighter:
// the current token's prefix rule first, then infix rules for as long as the
// next token binds at least as tightly.
func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefix := rules[c.previous.Type].prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}

	// Assignment is only allowed when parsing at assignment precedence;
	// passing the flag down lets `a.b = c` assign while `a + b = c` is
	// rejected below.
	canAssign := prec <= precAssignment
	prefix(c, canAssign)

	for prec <= rules[c.next.Type].prec {
		c.advance()
		rules[c.previous.Type].infix(c, canAssign)
	}

	if canAssign && c.match(token.Equal) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *Compiler) grouping(_ bool) {
	c.expression()
	c.consume(token.RightParen, "Expect ')' after expression.")
}

func (c *Compiler) number(_ bool) {
	lexeme := c.previous.Lexeme
	var value float64
	if strings.HasPrefix(lexeme, "0x") || strings.HasPrefix(lexeme, "0X") {
		n, err := strconv.ParseUint(lexeme[2:], 16, 64)
		if err != nil {
			c.error("Invalid hexadecimal literal.")
			return
		}
		value = float64(n)
	} else {
		var err error
		value, err = strconv.ParseFloat(lexeme, 64)
		if err != nil {
			c.error("Invalid number literal.")
			return
		}
	}
	c.emitConstant(object.Number(value))
}

func (c *Compiler) stringLiteral(_ bool) {
	lexeme := c.previous.Lexeme
	chars := lexeme[1 : len(lexeme)-1] // strip the quotes
	c.emitConstant(object.ObjectValue(c.heap.Intern(chars)))
}

func (c *Compiler) literal(_ bool) {
	switch c.previous.Type {
	case token.False:
		c.emitOp(op.False)
	case token.True:
		c.emitOp(op.True)
	case token.Nil:
		c.emitOp(op.Nil)
	}
}

func (c *Compiler) unary(_ bool) {
	operator := c.previous.Type
	c.parsePrecedence(precUnary)
	switch operator {
	case token.Bang:
		c.emitOp(op.Not)
	case token.Minus:
		c.emitOp(op.Negate)
	}
}

func (c *Compiler) binary(_ bool) {
	operator := c.previous.Type
	c.parsePrecedence(rules[operator].prec + 1)
	switch operator {
	case token.BangEqual:
		c.emitOps(op.Equal, op.Not)
	case token.EqualEqual:
		c.emitOp(op.Equal)
	case token.Greater:
		c.emitOp(op.Greater)
	case token.GreaterEqual:
		c.emitOps(op.Less, op.Not)
	case token.Less:
		c.emitOp(op.Less)
	case token.LessEqual:
		c.emitOps(op.Greater, op.Not)
	case token.Plus:
		c.emitOp(op.Add)
	case token.Minus:
		c.emitOp(op.Subtract)
	case token.Star:
		c.emitOp(op.Multiply)
	case token.Slash:
		c.emitOp(op.Divide)
	}
}

// ternary compiles `cond ? a : b`, right-associative: both arms parse at
// assignment precedence, so a nested ternary groups to the right.
func (c *Compiler) ternary(_ bool) {
	thenJump := c.emitJump(op.JumpIfFalse)
	c.emitOp(op.Pop)
	c.parsePrecedence(precAssignment)
	elseJump := c.emitJump(op.Jump)
	c.consume(token.Colon, "Expect ':' after then branch of ternary.")

	c.patchJump(thenJump)
	c.emitOp(op.Pop)
	c.parsePrecedence(precAssignment)
	c.patchJump(elseJump)
}

// and short-circuits: the left operand stays on the stack as the result if
// it is falsey, which is why JUMP_IF_FALSE must not pop.
func (c *Compiler) and(_ bool) {
	endJump := c.emitJump(op.JumpIfFalse)
	c.emitOp(op.Pop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or(_ bool) {
	elseJump := c.emitJump(op.JumpIfFalse)
	endJump := c.emitJump(op.Jump)
	c.patchJump(elseJump)
	c.emitOp(op.Pop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

// namedVariable resolves a name to a local slot, an upvalue, or a global,
// and emits the matching get or set instruction.
func (c *Compiler) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp op.Code
	arg := c.resolveLocal(c.current, name)
	switch {
	case arg != -1:
		getOp, setOp = op.GetLocal, op.SetLocal
	default:
		if upvalue := c.resolveUpvalue(c.current, name); upvalue != -1 {
			arg = upvalue
			getOp, setOp = op.GetUpvalue, op.SetUpvalue
		} else {
			arg = int(c.identifierConstant(name))
			getOp, setOp = op.GetGlobal, op.SetGlobal
		}
	}
	if canAssign && c.match(token.Equal) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

func (c *Compiler) call(_ bool) {
	argCount := c.argumentList()
	c.emitOpByte(op.Call, argCount)
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(token.Identifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous)
	switch {
	case canAssign && c.match(token.Equal):
		c.expression()
		c.emitOpByte(op.SetProperty, name)
	case c.match(token.LeftParen):
		argCount := c.argumentList()
		c.emitOpByte(op.Invoke, name)
		c.emitByte(argCount)
	default:
		c.emitOpByte(op.GetProperty, name)
	}
}

func (c *Compiler) this(_ bool) {
	if c.currentClass == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false)
}

func (c *Compiler) super(_ bool) {
	if c.currentClass == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.currentClass.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(token.Dot, "Expect '.' after 'super'.")
	c.consume(token.Identifier, "Expect superclass method name.")
	name := c.identifierConstant(c.previous)

	c.namedVariable(syntheticToken("this"), false)
	if c.match(token.LeftParen) {
		argCount := c.argumentList()
		c.namedVariable(syntheticToken("super"), false)
		c.emitOpByte(op.SuperInvoke, name)
		c.emitByte(argCount)
	} else {
		c.namedVariable(syntheticToken("super"), false)
		c.emitOpByte(op.GetSuper, name)
	}
}

func (c *Compiler) argumentList() byte {
	var argCount int
	if !c.check(token.RightParen) {
		for {
			c.expression()
			if argCount == maxArgs {
				c.error("Can't have more than 255 arguments.")
			}
			argCount++
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after arguments.")
	return byte(argCount)
}
