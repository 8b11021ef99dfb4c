package compiler

import (
	"strconv"

	"sigil/internal/bytecode"
	"sigil/internal/lexer"
	"sigil/internal/runtime"
)

type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment // =
	PrecOr         // or
	PrecAnd        // and
	PrecEquality   // == !=
	PrecComparison // < > <= >=
	PrecTerm       // + -
	PrecFactor     // * /
	PrecUnary      // ! -
	PrecCall       // . ()
	PrecPrimary
)

type parseFn func(*Parser, bool)

type ParseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

// One rule triple per token type. The parse functions reach the table only
// through ruleTable, which init sets, so the literal below does not form an
// initialization cycle with the functions it names.
var rules = [lexer.TokenCount]ParseRule{
	lexer.TokenLeftParen:    {(*Parser).grouping, (*Parser).call, PrecCall},
	lexer.TokenRightParen:   {nil, nil, PrecNone},
	lexer.TokenLeftBrace:    {nil, nil, PrecNone},
	lexer.TokenRightBrace:   {nil, nil, PrecNone},
	lexer.TokenComma:        {nil, nil, PrecNone},
	lexer.TokenDot:          {nil, (*Parser).dot, PrecCall},
	lexer.TokenMinus:        {(*Parser).unary, (*Parser).binary, PrecTerm},
	lexer.TokenPlus:         {nil, (*Parser).binary, PrecTerm},
	lexer.TokenSemicolon:    {nil, nil, PrecNone},
	lexer.TokenSlash:        {nil, (*Parser).binary, PrecFactor},
	lexer.TokenStar:         {nil, (*Parser).binary, PrecFactor},
	lexer.TokenBang:         {(*Parser).unary, nil, PrecNone},
	lexer.TokenBangEqual:    {nil, (*Parser).binary, PrecEquality},
	lexer.TokenEqual:        {nil, nil, PrecNone},
	lexer.TokenEqualEqual:   {nil, (*Parser).binary, PrecEquality},
	lexer.TokenGreater:      {nil, (*Parser).binary, PrecComparison},
	lexer.TokenGreaterEqual: {nil, (*Parser).binary, PrecComparison},
	lexer.TokenLess:         {nil, (*Parser).binary, PrecComparison},
	lexer.TokenLessEqual:    {nil, (*Parser).binary, PrecComparison},
	lexer.TokenIdentifier:   {(*Parser).variable, nil, PrecNone},
	lexer.TokenString:       {(*Parser).stringLiteral, nil, PrecNone},
	lexer.TokenNumber:       {(*Parser).number, nil, PrecNone},
	lexer.TokenAnd:          {nil, (*Parser).and, PrecAnd},
	lexer.TokenClass:        {nil, nil, PrecNone},
	lexer.TokenElse:         {nil, nil, PrecNone},
	lexer.TokenFalse:        {(*Parser).literal, nil, PrecNone},
	lexer.TokenFor:          {nil, nil, PrecNone},
	lexer.TokenFun:          {nil, nil, PrecNone},
	lexer.TokenIf:           {nil, nil, PrecNone},
	lexer.TokenNil:          {(*Parser).literal, nil, PrecNone},
	lexer.TokenOr:           {nil, (*Parser).or, PrecOr},
	lexer.TokenPrint:        {nil, nil, PrecNone},
	lexer.TokenReturn:       {nil, nil, PrecNone},
	lexer.TokenSuper:        {(*Parser).super, nil, PrecNone},
	lexer.TokenThis:         {(*Parser).this, nil, PrecNone},
	lexer.TokenTrue:         {(*Parser).literal, nil, PrecNone},
	lexer.TokenVar:          {nil, nil, PrecNone},
	lexer.TokenWhile:        {nil, nil, PrecNone},
	lexer.TokenError:        {nil, nil, PrecNone},
	lexer.TokenEOF:          {nil, nil, PrecNone},
}

var ruleTable *[lexer.TokenCount]ParseRule

func init() { ruleTable = &rules }

func getRule(t lexer.TokenType) *ParseRule {
	return &ruleTable[t]
}

func (p *Parser) expression() {
	p.parsePrecedence(PrecAssignment)
}

// parsePrecedence is the Pratt core: one prefix parse for the token just
// consumed, then infix parses while the lookahead binds at least as tightly
// as precedence. canAssign threads down so `a.b = c` parses as assignment
// only where an assignment target is legal.
func (p *Parser) parsePrecedence(precedence Precedence) {
	p.advance()
	prefix := getRule(p.previous.Type).prefix
	if prefix == nil {
		p.error("Expect expression.")
		return
	}

	canAssign := precedence <= PrecAssignment
	prefix(p, canAssign)

	for precedence <= getRule(p.current.Type).precedence {
		p.advance()
		infix := getRule(p.previous.Type).infix
		infix(p, canAssign)
	}

	if canAssign && p.match(lexer.TokenEqual) {
		p.error("Invalid assignment target.")
	}
}

func (p *Parser) grouping(bool) {
	p.expression()
	p.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func (p *Parser) number(bool) {
	value, _ := strconv.ParseFloat(p.previous.Lexeme, 64)
	p.emitConstant(runtime.NumberVal(value))
}

func (p *Parser) stringLiteral(bool) {
	p.emitConstant(runtime.ObjVal(p.heap.Intern(p.previous.Lexeme)))
}

func (p *Parser) literal(bool) {
	switch p.previous.Type {
	case lexer.TokenFalse:
		p.emitOp(bytecode.OpFalse)
	case lexer.TokenNil:
		p.emitOp(bytecode.OpNil)
	case lexer.TokenTrue:
		p.emitOp(bytecode.OpTrue)
	}
}

func (p *Parser) unary(bool) {
	operator := p.previous.Type
	p.parsePrecedence(PrecUnary)
	switch operator {
	case lexer.TokenBang:
		p.emitOp(bytecode.OpNot)
	case lexer.TokenMinus:
		p.emitOp(bytecode.OpNegate)
	}
}

func (p *Parser) binary(bool) {
	operator := p.previous.Type
	rule := getRule(operator)
	p.parsePrecedence(rule.precedence + 1)

	switch operator {
	case lexer.TokenBangEqual:
		p.emitOp(bytecode.OpEqual)
		p.emitOp(bytecode.OpNot)
	case lexer.TokenEqualEqual:
		p.emitOp(bytecode.OpEqual)
	case lexer.TokenGreater:
		p.emitOp(bytecode.OpGreater)
	case lexer.TokenGreaterEqual:
		p.emitOp(bytecode.OpLess)
		p.emitOp(bytecode.OpNot)
	case lexer.TokenLess:
		p.emitOp(bytecode.OpLess)
	case lexer.TokenLessEqual:
		p.emitOp(bytecode.OpGreater)
		p.emitOp(bytecode.OpNot)
	case lexer.TokenPlus:
		p.emitOp(bytecode.OpAdd)
	case lexer.TokenMinus:
		p.emitOp(bytecode.OpSubtract)
	case lexer.TokenStar:
		p.emitOp(bytecode.OpMultiply)
	case lexer.TokenSlash:
		p.emitOp(bytecode.OpDivide)
	}
}

// and short-circuits: with a falsey left operand, skip the right one and
// leave the left as the result.
func (p *Parser) and(bool) {
	endJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(PrecAnd)
	p.patchJump(endJump)
}

func (p *Parser) or(bool) {
	elseJump := p.emitJump(bytecode.OpJumpIfFalse)
	endJump := p.emitJump(bytecode.OpJump)
	p.patchJump(elseJump)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(PrecOr)
	p.patchJump(endJump)
}

func (p *Parser) call(bool) {
	argCount := p.argumentList()
	p.emitOpWord(bytecode.OpCall, uint16(argCount))
}

func (p *Parser) dot(canAssign bool) {
	p.consume(lexer.TokenIdentifier, "Expect property name after '.'.")
	name := p.identifierConstant(p.previous)

	switch {
	case canAssign && p.match(lexer.TokenEqual):
		p.expression()
		p.emitOpWord(bytecode.OpSetProperty, name)
	case p.match(lexer.TokenLeftParen):
		argCount := p.argumentList()
		p.emitOpWord(bytecode.OpInvoke, name)
		p.emitWord(uint16(argCount))
	default:
		p.emitOpWord(bytecode.OpGetProperty, name)
	}
}

func (p *Parser) argumentList() int {
	argCount := 0
	if !p.check(lexer.TokenRightParen) {
		for {
			p.expression()
			if argCount == 255 {
				p.error("Can't have more than 255 arguments.")
			}
			argCount++
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return argCount
}

func (p *Parser) variable(canAssign bool) {
	p.namedVariable(p.previous, canAssign)
}

// namedVariable resolves in order: local slot, upvalue, global by name.
func (p *Parser) namedVariable(name lexer.Token, canAssign bool) {
	var getOp, setOp bytecode.OpCode
	var arg int

	if arg = p.resolveLocal(p.compiler, name); arg != -1 {
		getOp = bytecode.OpGetLocal
		setOp = bytecode.OpSetLocal
	} else if arg = p.resolveUpvalue(p.compiler, name); arg != -1 {
		getOp = bytecode.OpGetUpvalue
		setOp = bytecode.OpSetUpvalue
	} else {
		arg = int(p.identifierConstant(name))
		getOp = bytecode.OpGetGlobal
		setOp = bytecode.OpSetGlobal
	}

	if canAssign && p.match(lexer.TokenEqual) {
		p.expression()
		p.emitOpWord(setOp, uint16(arg))
	} else {
		p.emitOpWord(getOp, uint16(arg))
	}
}

func (p *Parser) this(bool) {
	if p.currentClass == nil {
		p.error("Can't use 'this' outside of a class.")
		return
	}
	p.variable(false)
}

func (p *Parser) super(bool) {
	if p.currentClass == nil {
		p.error("Can't use 'super' outside of a class.")
	} else if !p.currentClass.hasSuperclass {
		p.error("Can't use 'super' in a class with no superclass.")
	}

	p.consume(lexer.TokenDot, "Expect '.' after 'super'.")
	p.consume(lexer.TokenIdentifier, "Expect superclass method name.")
	name := p.identifierConstant(p.previous)

	p.namedVariable(syntheticToken("this"), false)
	if p.match(lexer.TokenLeftParen) {
		argCount := p.argumentList()
		p.namedVariable(syntheticToken("super"), false)
		p.emitOpWord(bytecode.OpSuperInvoke, name)
		p.emitWord(uint16(argCount))
	} else {
		p.namedVariable(syntheticToken("super"), false)
		p.emitOpWord(bytecode.OpGetSuper, name)
	}
}
