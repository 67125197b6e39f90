// Package parser implements the recursive-descent parser: an explicit
// precedence ladder over a flat token stream, producing an ast.Module or a
// located diagnostics.ParseError.
package parser

import (
	"exprc/internal/ast"
	"exprc/internal/diagnostics"
	"exprc/internal/token"
)

// Parser consumes a token stream produced by token.Tokenize and builds an
// ast.Module. It holds no state beyond its cursor and the transient
// allowVarDecl flag used to reject "var" outside declaration positions.
type Parser struct {
	tokens []token.Token
	pos    int

	// allowVarDecl is set to true immediately before parsing a statement in
	// block/module top-level position, and captured-then-cleared at the top
	// of parsePrimary. This makes "var" legal only as the entire statement
	// being parsed, never nested inside an operator or call argument.
	allowVarDecl bool
}

// New constructs a Parser over tokens.
func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse runs the parser over tokens and returns the resulting Module.
func Parse(tokens []token.Token) (*ast.Module, error) {
	return New(tokens).ParseModule()
}

// ----------------------------------------------------------------------------
// Cursor helpers

func (p *Parser) current() token.Token {
	if p.pos >= len(p.tokens) {
		return token.End(p.tokens)
	}
	return p.tokens[p.pos]
}

func (p *Parser) atEnd() bool {
	return p.pos >= len(p.tokens)
}

func (p *Parser) advance() token.Token {
	t := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *Parser) checkKeyword(text string) bool {
	t := p.current()
	return t.Kind == token.Keyword && t.Text == text
}

func (p *Parser) checkOp(text string) bool {
	t := p.current()
	return t.Kind == token.Operator && t.Text == text
}

func (p *Parser) checkPunct(text string) bool {
	t := p.current()
	return t.Kind == token.Punctuation && t.Text == text
}

func (p *Parser) expectPunct(text string) (token.Token, error) {
	if !p.checkPunct(text) {
		return token.Token{}, diagnostics.NewParseError(p.current().Loc, "expected %q, found %q", text, p.current().Text)
	}
	return p.advance(), nil
}

func (p *Parser) expectKeyword(text string) (token.Token, error) {
	if !p.checkKeyword(text) {
		return token.Token{}, diagnostics.NewParseError(p.current().Loc, "expected keyword %q, found %q", text, p.current().Text)
	}
	return p.advance(), nil
}

func (p *Parser) expectIdentifier() (token.Token, error) {
	if p.current().Kind != token.Identifier {
		return token.Token{}, diagnostics.NewParseError(p.current().Loc, "expected identifier, found %q", p.current().Text)
	}
	return p.advance(), nil
}

func (p *Parser) expectTypeName() (string, error) {
	t := p.current()
	if t.Kind != token.Keyword || (t.Text != "Int" && t.Text != "Bool" && t.Text != "Unit") {
		return "", diagnostics.NewParseError(t.Loc, "expected a type name (Int, Bool or Unit), found %q", t.Text)
	}
	p.advance()
	return t.Text, nil
}

// ----------------------------------------------------------------------------
// Module and function definitions

// ParseModule consumes the entire token stream: an interleaving of function
// definitions and top-level expressions, the latter joined by the same
// semicolon rule used inside blocks.
func (p *Parser) ParseModule() (*ast.Module, error) {
	loc := p.current().Loc
	module := &ast.Module{Loc: loc}

	for !p.atEnd() {
		if p.checkKeyword("fun") {
			fd, err := p.parseFunctionDefinition()
			if err != nil {
				return nil, err
			}
			module.FunctionDefinitions = append(module.FunctionDefinitions, fd)
			continue
		}

		p.allowVarDecl = true
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		module.TopLevelExpressions = append(module.TopLevelExpressions, expr)

		if p.checkPunct(";") {
			p.advance()
			continue
		}
		if p.atEnd() || p.checkKeyword("fun") {
			continue
		}
		if isSelfTerminating(expr) {
			continue
		}
		return nil, diagnostics.NewParseError(p.current().Loc, "expected ';' between top-level expressions, found %q", p.current().Text)
	}

	return module, nil
}

func (p *Parser) parseFunctionDefinition() (*ast.FunctionDefinition, error) {
	loc := p.current().Loc
	if _, err := p.expectKeyword("fun"); err != nil {
		return nil, err
	}
	nameTok, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var params []ast.Param
	if !p.checkPunct(")") {
		for {
			pname, err := p.expectIdentifier()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			ptype, err := p.expectTypeName()
			if err != nil {
				return nil, err
			}
			params = append(params, ast.Param{Name: pname.Text, ParamType: ptype})
			if p.checkPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if _, err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	returnType, err := p.expectTypeName()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDefinition{
		Name:       nameTok.Text,
		Parameters: params,
		ReturnType: returnType,
		Body:       body,
		Loc:        loc,
	}, nil
}

// ----------------------------------------------------------------------------
// Blocks

// isSelfTerminating reports whether e's own grammar already accounts for the
// boundary to the next statement: Block/If/While may be juxtaposed per the
// semicolon rule, and ReturnStatement consumes its own trailing ';' as part
// of its primary production.
func isSelfTerminating(e ast.Expr) bool {
	switch e.(type) {
	case *ast.Block, *ast.IfExpression, *ast.WhileLoop, *ast.ReturnStatement:
		return true
	default:
		return false
	}
}

// parseBlock parses "{ stmt_0; stmt_1; ... result }", applying the semicolon
// elision rule described in isSelfTerminating and the trailing-semicolon /
// empty-block Unit-result rule.
func (p *Parser) parseBlock() (*ast.Block, error) {
	loc := p.current().Loc
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}

	var statements []ast.Expr
	for {
		if p.checkPunct("}") {
			closeLoc := p.current().Loc
			p.advance()
			return ast.NewBlock(loc, statements, ast.NewLiteralUnit(closeLoc)), nil
		}

		p.allowVarDecl = true
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		if p.checkPunct(";") {
			semiLoc := p.current().Loc
			p.advance()
			statements = append(statements, expr)
			if p.checkPunct("}") {
				closeLoc := p.current().Loc
				p.advance()
				return ast.NewBlock(loc, statements, ast.NewLiteralUnit(closeLoc)), nil
			}
			_ = semiLoc
			continue
		}

		if p.checkPunct("}") {
			p.advance()
			return ast.NewBlock(loc, statements, expr), nil
		}

		if isSelfTerminating(expr) {
			statements = append(statements, expr)
			continue
		}

		return nil, diagnostics.NewParseError(p.current().Loc, "expected ';' or '}', found %q", p.current().Text)
	}
}

// ----------------------------------------------------------------------------
// Precedence ladder

func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseAssign()
}

// parseAssign is right-associative: "a = b = c" parses as "a = (b = c)".
func (p *Parser) parseAssign() (ast.Expr, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.checkOp("=") {
		loc := p.current().Loc
		p.advance()
		right, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return ast.NewBinaryOp(loc, left, "=", right), nil
	}
	return left, nil
}

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.checkOp("or") {
		loc := p.current().Loc
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryOp(loc, left, "or", right)
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.checkOp("and") {
		loc := p.current().Loc
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryOp(loc, left, "and", right)
	}
	return left, nil
}

func (p *Parser) parseEquality() (ast.Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.checkOp("==") || p.checkOp("!=") {
		op := p.current()
		p.advance()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryOp(op.Loc, left, op.Text, right)
	}
	return left, nil
}

func (p *Parser) parseRelational() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.checkOp("<") || p.checkOp("<=") || p.checkOp(">") || p.checkOp(">=") {
		op := p.current()
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryOp(op.Loc, left, op.Text, right)
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.checkOp("+") || p.checkOp("-") {
		op := p.current()
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryOp(op.Loc, left, op.Text, right)
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.checkOp("*") || p.checkOp("/") || p.checkOp("%") {
		op := p.current()
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryOp(op.Loc, left, op.Text, right)
	}
	return left, nil
}

// parseUnary binds tighter than any binary operator and stacks
// right-associatively: "not not x" is UnaryOp(not, UnaryOp(not, x)).
func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.checkOp("-") || p.checkOp("not") {
		op := p.current()
		p.advance()
		p.allowVarDecl = false
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnaryOp(op.Loc, op.Text, operand), nil
	}
	return p.parsePrimary()
}

// ----------------------------------------------------------------------------
// Primary forms

func (p *Parser) parsePrimary() (ast.Expr, error) {
	allow := p.allowVarDecl
	p.allowVarDecl = false

	t := p.current()

	switch {
	case t.Kind == token.IntLiteral:
		p.advance()
		var v int64
		for _, c := range t.Text {
			v = v*10 + int64(c-'0')
		}
		return ast.NewLiteralInt(t.Loc, v), nil

	case t.Kind == token.BooleanLiteral:
		p.advance()
		return ast.NewLiteralBool(t.Loc, t.Text == "true"), nil

	case t.Kind == token.Identifier:
		p.advance()
		ident := ast.NewIdentifier(t.Loc, t.Text)
		if p.checkPunct("(") {
			return p.parseCallArgs(ident)
		}
		return ident, nil

	case t.Kind == token.Punctuation && t.Text == "(":
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil

	case t.Kind == token.Punctuation && t.Text == "{":
		return p.parseBlock()

	case t.Kind == token.Keyword && t.Text == "if":
		return p.parseIf()

	case t.Kind == token.Keyword && t.Text == "while":
		return p.parseWhile()

	case t.Kind == token.Keyword && t.Text == "var":
		if !allow {
			return nil, diagnostics.NewParseError(t.Loc, "'var' is not allowed in this position")
		}
		return p.parseVarDeclaration()

	case t.Kind == token.Keyword && t.Text == "return":
		return p.parseReturn()

	case t.Kind == token.Keyword && t.Text == "break":
		p.advance()
		return ast.NewBreakStatement(t.Loc), nil

	case t.Kind == token.Keyword && t.Text == "continue":
		p.advance()
		return ast.NewContinueStatement(t.Loc), nil

	default:
		return nil, diagnostics.NewParseError(t.Loc, "unexpected token %q", t.Text)
	}
}

func (p *Parser) parseCallArgs(callee *ast.Identifier) (ast.Expr, error) {
	loc := callee.Location()
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []ast.Expr
	if !p.checkPunct(")") {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.checkPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return ast.NewFunctionCall(loc, callee, args), nil
}

func (p *Parser) parseIf() (ast.Expr, error) {
	loc := p.current().Loc
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("then"); err != nil {
		return nil, err
	}
	thenBranch, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var elseBranch ast.Expr
	if p.checkKeyword("else") {
		p.advance()
		elseBranch, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return ast.NewIfExpression(loc, cond, thenBranch, elseBranch), nil
}

func (p *Parser) parseWhile() (ast.Expr, error) {
	loc := p.current().Loc
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return ast.NewWhileLoop(loc, cond, body), nil
}

func (p *Parser) parseVarDeclaration() (ast.Expr, error) {
	loc := p.current().Loc
	p.advance() // 'var'
	nameTok, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	declaredType := ""
	if p.checkPunct(":") {
		p.advance()
		declaredType, err = p.expectTypeName()
		if err != nil {
			return nil, err
		}
	}
	if _, err := expectOp(p, "="); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return ast.NewVarDeclaration(loc, nameTok.Text, declaredType, value), nil
}

func (p *Parser) parseReturn() (ast.Expr, error) {
	loc := p.current().Loc
	p.advance() // 'return'
	var value ast.Expr
	if !p.checkPunct(";") {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		value = v
	}
	if _, err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return ast.NewReturnStatement(loc, value), nil
}

func expectOp(p *Parser, text string) (token.Token, error) {
	if !p.checkOp(text) {
		return token.Token{}, diagnostics.NewParseError(p.current().Loc, "expected %q, found %q", text, p.current().Text)
	}
	return p.advance(), nil
}
