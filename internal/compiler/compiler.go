// Package compiler turns a token stream into bytecode in a single pass.
// There is no AST: Pratt parsing drives emission directly, and forward jumps
// are backpatched once their targets are known.
package compiler

import (
	"fmt"
	"io"

	"sigil/internal/bytecode"
	"sigil/internal/errors"
	"sigil/internal/lexer"
	"sigil/internal/runtime"
)

// maxOperand is the largest value one 16-bit operand word can carry; it
// bounds constants, local slots, upvalues, and jump distances alike.
const maxOperand = 65535

type FunctionType int

const (
	TypeScript FunctionType = iota
	TypeFunction
	TypeMethod
	TypeInitializer
)

// Local is a declared local variable. depth == -1 marks it declared but not
// yet initialized, so reads inside its own initializer can be rejected.
type Local struct {
	name       lexer.Token
	depth      int
	isCaptured bool
}

// Upvalue describes one captured variable: a local slot of the enclosing
// function, or an upvalue index of the enclosing function.
type Upvalue struct {
	index   uint16
	isLocal bool
}

// Compiler is the per-function compile state. Nested function declarations
// push a new Compiler linked through enclosing.
type Compiler struct {
	enclosing  *Compiler
	function   *runtime.ObjFunction
	fnType     FunctionType
	locals     []Local
	scopeDepth int
	upvalues   []Upvalue
}

// ClassCompiler tracks the innermost class being compiled, for this/super
// validation.
type ClassCompiler struct {
	enclosing     *ClassCompiler
	hasSuperclass bool
}

// Parser holds the token window and error state shared by the whole
// compilation.
type Parser struct {
	scanner  *lexer.Scanner
	heap     *runtime.Heap
	errOut   io.Writer
	current  lexer.Token
	previous lexer.Token

	hadError  bool
	panicMode bool

	compiler     *Compiler
	currentClass *ClassCompiler
}

// Compile drives a full compilation of source and returns the top-level
// function, or nil if any compile error was reported. Diagnostics go to
// errOut as they are found.
func Compile(source string, heap *runtime.Heap, errOut io.Writer) *runtime.ObjFunction {
	p := &Parser{
		scanner: lexer.NewScanner(source),
		heap:    heap,
		errOut:  errOut,
	}
	p.initCompiler(TypeScript)

	// In-progress functions are GC roots until compilation finishes.
	heap.SetCompilerRoots(func(h *runtime.Heap) {
		for c := p.compiler; c != nil; c = c.enclosing {
			h.MarkObject(c.function)
		}
	})
	defer heap.SetCompilerRoots(nil)

	p.advance()
	for !p.match(lexer.TokenEOF) {
		p.declaration()
	}
	fn := p.endCompiler()
	if p.hadError {
		return nil
	}
	return fn
}

func (p *Parser) initCompiler(fnType FunctionType) {
	c := &Compiler{
		enclosing: p.compiler,
		function:  p.heap.NewFunction(),
		fnType:    fnType,
		locals:    make([]Local, 0, 8),
	}
	p.compiler = c
	if fnType != TypeScript {
		c.function.Name = p.heap.Intern(p.previous.Lexeme)
	}

	// Slot 0 belongs to the callee. Methods and initializers expose it as
	// `this`; elsewhere it is unnamed and unresolvable.
	slotZero := Local{depth: 0}
	if fnType == TypeMethod || fnType == TypeInitializer {
		slotZero.name = lexer.Token{Type: lexer.TokenThis, Lexeme: "this"}
	}
	c.locals = append(c.locals, slotZero)
}

func (p *Parser) endCompiler() *runtime.ObjFunction {
	p.emitReturn()
	fn := p.compiler.function
	p.compiler = p.compiler.enclosing
	return fn
}

func (p *Parser) currentChunk() *runtime.Chunk {
	return &p.compiler.function.Chunk
}

// Token consumption.

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.ScanToken()
		if p.current.Type != lexer.TokenError {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *Parser) consume(t lexer.TokenType, message string) {
	if p.current.Type == t {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

func (p *Parser) check(t lexer.TokenType) bool {
	return p.current.Type == t
}

func (p *Parser) match(t lexer.TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

// Error reporting. The first error flips panicMode, suppressing the cascade
// until synchronize() finds a statement boundary.

func (p *Parser) errorAt(tok lexer.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	ce := &errors.CompileError{Line: tok.Line, Message: message}
	switch tok.Type {
	case lexer.TokenEOF:
		ce.AtEnd = true
	case lexer.TokenError:
		// The lexeme is the scanner's message, not source text.
	default:
		ce.At = tok.Lexeme
	}
	fmt.Fprintln(p.errOut, ce.Error())
	p.hadError = true
}

func (p *Parser) error(message string) {
	p.errorAt(p.previous, message)
}

func (p *Parser) errorAtCurrent(message string) {
	p.errorAt(p.current, message)
}

func (p *Parser) synchronize() {
	p.panicMode = false
	for p.current.Type != lexer.TokenEOF {
		if p.previous.Type == lexer.TokenSemicolon {
			return
		}
		switch p.current.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		p.advance()
	}
}

// Emission.

func (p *Parser) emitWord(word uint16) {
	p.currentChunk().Write(word, p.previous.Line)
}

func (p *Parser) emitOp(op bytecode.OpCode) {
	p.emitWord(uint16(op))
}

func (p *Parser) emitOpWord(op bytecode.OpCode, operand uint16) {
	p.emitOp(op)
	p.emitWord(operand)
}

func (p *Parser) emitReturn() {
	if p.compiler.fnType == TypeInitializer {
		// init() implicitly returns the instance sitting in slot 0.
		p.emitOpWord(bytecode.OpGetLocal, 0)
	} else {
		p.emitOp(bytecode.OpNil)
	}
	p.emitOp(bytecode.OpReturn)
}

func (p *Parser) makeConstant(value runtime.Value) uint16 {
	index := p.currentChunk().AddConstant(value)
	if index >= maxOperand {
		p.error("Too many constants in one chunk.")
		return 0
	}
	return uint16(index)
}

func (p *Parser) emitConstant(value runtime.Value) {
	p.emitOpWord(bytecode.OpConstant, p.makeConstant(value))
}

// emitJump writes op with a placeholder operand and returns the operand's
// index for patchJump.
func (p *Parser) emitJump(op bytecode.OpCode) int {
	p.emitOp(op)
	p.emitWord(0xffff)
	return p.currentChunk().Count() - 1
}

func (p *Parser) patchJump(offset int) {
	// Distance from just past the operand to the current end of code.
	jump := p.currentChunk().Count() - offset - 1
	if jump > maxOperand {
		p.error("Too much code to jump over.")
	}
	p.currentChunk().Code[offset] = uint16(jump)
}

func (p *Parser) emitLoop(loopStart int) {
	p.emitOp(bytecode.OpLoop)
	offset := p.currentChunk().Count() + 1 - loopStart
	if offset > maxOperand {
		p.error("Loop body too large.")
	}
	p.emitWord(uint16(offset))
}

// Scopes and variables.

func (p *Parser) beginScope() {
	p.compiler.scopeDepth++
}

func (p *Parser) endScope() {
	c := p.compiler
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].isCaptured {
			p.emitOp(bytecode.OpCloseUpvalue)
		} else {
			p.emitOp(bytecode.OpPop)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (p *Parser) identifierConstant(tok lexer.Token) uint16 {
	return p.makeConstant(runtime.ObjVal(p.heap.Intern(tok.Lexeme)))
}

func (p *Parser) addLocal(name lexer.Token) {
	c := p.compiler
	if len(c.locals) >= maxOperand {
		p.error("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, Local{name: name, depth: -1})
}

func (p *Parser) declareVariable() {
	c := p.compiler
	if c.scopeDepth == 0 {
		return
	}
	name := p.previous
	for i := len(c.locals) - 1; i >= 0; i-- {
		local := &c.locals[i]
		if local.depth != -1 && local.depth < c.scopeDepth {
			break
		}
		if local.name.Lexeme == name.Lexeme {
			p.error("Already a variable with this name in this scope.")
		}
	}
	p.addLocal(name)
}

func (p *Parser) parseVariable(message string) uint16 {
	p.consume(lexer.TokenIdentifier, message)
	p.declareVariable()
	if p.compiler.scopeDepth > 0 {
		return 0
	}
	return p.identifierConstant(p.previous)
}

func (p *Parser) markInitialized() {
	c := p.compiler
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

func (p *Parser) defineVariable(global uint16) {
	if p.compiler.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOpWord(bytecode.OpDefineGlobal, global)
}

func (p *Parser) resolveLocal(c *Compiler, name lexer.Token) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		local := &c.locals[i]
		if local.name.Lexeme == name.Lexeme && local.name.Lexeme != "" {
			if local.depth == -1 {
				p.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (p *Parser) addUpvalue(c *Compiler, index uint16, isLocal bool) int {
	for i, uv := range c.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(c.upvalues) >= maxOperand {
		p.error("Too many closure variables in function.")
		return 0
	}
	c.upvalues = append(c.upvalues, Upvalue{index: index, isLocal: isLocal})
	c.function.UpvalueCount = len(c.upvalues)
	return len(c.upvalues) - 1
}

// resolveUpvalue walks outward through enclosing compilers. A hit in the
// immediately enclosing function captures that local; deeper hits chain
// through the intermediate functions' upvalue lists.
func (p *Parser) resolveUpvalue(c *Compiler, name lexer.Token) int {
	if c.enclosing == nil {
		return -1
	}
	if local := p.resolveLocal(c.enclosing, name); local != -1 {
		c.enclosing.locals[local].isCaptured = true
		return p.addUpvalue(c, uint16(local), true)
	}
	if upvalue := p.resolveUpvalue(c.enclosing, name); upvalue != -1 {
		return p.addUpvalue(c, uint16(upvalue), false)
	}
	return -1
}
