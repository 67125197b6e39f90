package ir

import (
	"fmt"

	"exprc/internal/ast"
	"exprc/internal/collections"
	"exprc/internal/diagnostics"
	"exprc/internal/types"
)

// scope is the IR generator's source-name -> IRVar environment, a parent
// chain exactly like the type checker's Env but mapping to storage locations
// instead of types.
type scope struct {
	vars   map[string]IRVar
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[string]IRVar), parent: parent}
}

func (s *scope) lookup(name string) (IRVar, bool) {
	for f := s; f != nil; f = f.parent {
		if v, ok := f.vars[name]; ok {
			return v, true
		}
	}
	return "", false
}

func (s *scope) define(name string, v IRVar) {
	s.vars[name] = v
}

// Generator lowers a typed Module to a Program, one Function per source
// function definition plus a synthetic "main" for the module's top-level
// expressions. Fresh-name counters and the break/continue label stacks are
// all per-function state, reset by reset() at the start of each function.
type Generator struct {
	varCounter   int
	labelCounter int
	instrs       []Instruction
	irVars       []IRVar
	continueTo   collections.Stack[Label] // loop condition labels, targets of 'continue'
	breakTo      collections.Stack[Label] // loop end labels, targets of 'break'
	returnVar    IRVar
	returnLabel  Label // target of every 'return', placed right before the epilogue
}

// NewGenerator returns a ready-to-use Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate lowers every function definition and the module's top-level
// expressions (as the implicit "main") to a Program.
func Generate(module *ast.Module) (*Program, error) {
	return NewGenerator().Generate(module)
}

func (g *Generator) reset() {
	g.varCounter = 0
	g.labelCounter = 0
	g.instrs = nil
	g.irVars = nil
	g.continueTo = collections.NewStack[Label]()
	g.breakTo = collections.NewStack[Label]()
	g.returnVar = ""
	g.returnLabel = ""
}

func (g *Generator) fresh() IRVar {
	g.varCounter++
	v := IRVar(fmt.Sprintf("x%d", g.varCounter))
	g.irVars = append(g.irVars, v)
	return v
}

func (g *Generator) freshLabel() Label {
	g.labelCounter++
	return Label(fmt.Sprintf("L%d", g.labelCounter))
}

func (g *Generator) emit(instr Instruction) {
	g.instrs = append(g.instrs, instr)
}

func (g *Generator) Generate(module *ast.Module) (*Program, error) {
	program := &Program{}

	for _, fd := range module.FunctionDefinitions {
		fn, err := g.generateFunction(fd)
		if err != nil {
			return nil, fmt.Errorf("error lowering function %q: %w", fd.Name, err)
		}
		program.Functions = append(program.Functions, fn)
	}

	main, err := g.generateMain(module)
	if err != nil {
		return nil, fmt.Errorf("error lowering top-level expressions: %w", err)
	}
	program.Functions = append(program.Functions, main)

	return program, nil
}

func (g *Generator) generateFunction(fd *ast.FunctionDefinition) (*Function, error) {
	g.reset()
	g.returnVar = "ret1"
	g.returnLabel = g.freshLabel()

	env := newScope(nil)
	params := make([]IRVar, len(fd.Parameters))
	for i, p := range fd.Parameters {
		pv := IRVar(fmt.Sprintf("p%d", i+1))
		params[i] = pv
		env.define(p.Name, pv)
	}

	bodyResult, err := g.handleExpr(env, fd.Body)
	if err != nil {
		return nil, err
	}
	// A body that never reaches an explicit 'return' falls through to here
	// with its value in bodyResult; copy it into the return slot before the
	// shared end label. A body that always returns already wrote ret1 itself.
	if !containsReturn(fd.Body) {
		g.emit(NewCopy(fd.Loc, bodyResult, g.returnVar))
	}
	g.emit(NewLabel(fd.Loc, g.returnLabel))

	return &Function{
		Name:         fd.Name,
		Params:       params,
		ReturnVar:    g.returnVar,
		Instructions: g.instrs,
	}, nil
}

// generateMain lowers the module's top-level expressions in order. If the
// final expression's type is Int or Bool, a call to print_int/print_bool is
// appended so the program produces observable output (spec §4.4).
func (g *Generator) generateMain(module *ast.Module) (*Function, error) {
	g.reset()
	env := newScope(nil)

	var last IRVar = Unit
	var lastType types.Type = types.Unit
	for _, expr := range module.TopLevelExpressions {
		v, err := g.handleExpr(env, expr)
		if err != nil {
			return nil, err
		}
		last = v
		lastType = expr.NodeType()
	}

	if lastType.Equal(types.Int) {
		g.emit(NewCall(module.Loc, "print_int", []IRVar{last}, g.fresh()))
	} else if lastType.Equal(types.Bool) {
		g.emit(NewCall(module.Loc, "print_bool", []IRVar{last}, g.fresh()))
	}

	return &Function{Name: "main", Instructions: g.instrs}, nil
}

// handleExpr lowers e and returns the IRVar holding its value;
// statement-like forms return Unit without emitting a meaningful value.
func (g *Generator) handleExpr(env *scope, e ast.Expr) (IRVar, error) {
	switch n := e.(type) {

	case *ast.Literal:
		return g.handleLiteral(n)

	case *ast.Identifier:
		v, ok := env.lookup(n.Name)
		if !ok {
			return "", diagnostics.NewLoweringError(n.Loc, "internal error: unresolved identifier %q reached lowering", n.Name)
		}
		return v, nil

	case *ast.UnaryOp:
		operand, err := g.handleExpr(env, n.Operand)
		if err != nil {
			return "", err
		}
		dest := g.fresh()
		g.emit(NewCall(n.Loc, IRVar("unary_"+n.Op), []IRVar{operand}, dest))
		return dest, nil

	case *ast.BinaryOp:
		return g.handleBinaryOp(env, n)

	case *ast.IfExpression:
		return g.handleIfExpression(env, n)

	case *ast.WhileLoop:
		return g.handleWhileLoop(env, n)

	case *ast.Block:
		return g.handleBlock(env, n)

	case *ast.VarDeclaration:
		return g.handleVarDeclaration(env, n)

	case *ast.FunctionCall:
		return g.handleFunctionCall(env, n)

	case *ast.BreakStatement:
		target, err := g.breakTo.Top()
		if err != nil {
			return "", diagnostics.NewLoweringError(n.Loc, "internal error: 'break' reached lowering with no enclosing loop")
		}
		g.emit(NewJump(n.Loc, target))
		return Unit, nil

	case *ast.ContinueStatement:
		target, err := g.continueTo.Top()
		if err != nil {
			return "", diagnostics.NewLoweringError(n.Loc, "internal error: 'continue' reached lowering with no enclosing loop")
		}
		g.emit(NewJump(n.Loc, target))
		return Unit, nil

	case *ast.ReturnStatement:
		return g.handleReturnStatement(env, n)

	default:
		return "", diagnostics.NewLoweringError(e.Location(), "unhandled expression node %T", e)
	}
}

func (g *Generator) handleLiteral(n *ast.Literal) (IRVar, error) {
	switch n.Kind {
	case ast.IntLiteralKind:
		dest := g.fresh()
		g.emit(NewLoadIntConst(n.Loc, n.IntVal, dest))
		return dest, nil
	case ast.BoolLiteralKind:
		dest := g.fresh()
		g.emit(NewLoadBoolConst(n.Loc, n.BoolVal, dest))
		return dest, nil
	default:
		return Unit, nil
	}
}

func (g *Generator) handleBinaryOp(env *scope, n *ast.BinaryOp) (IRVar, error) {
	switch n.Op {
	case "=":
		rhs, err := g.handleExpr(env, n.Right)
		if err != nil {
			return "", err
		}
		ident := n.Left.(*ast.Identifier)
		lhsVar, ok := env.lookup(ident.Name)
		if !ok {
			return "", diagnostics.NewLoweringError(n.Loc, "internal error: unresolved assignment target %q reached lowering", ident.Name)
		}
		g.emit(NewCopy(n.Loc, rhs, lhsVar))
		return lhsVar, nil

	case "and":
		return g.handleShortCircuit(env, n, true)

	case "or":
		return g.handleShortCircuit(env, n, false)

	default:
		left, err := g.handleExpr(env, n.Left)
		if err != nil {
			return "", err
		}
		right, err := g.handleExpr(env, n.Right)
		if err != nil {
			return "", err
		}
		dest := g.fresh()
		g.emit(NewCall(n.Loc, IRVar(n.Op), []IRVar{left, right}, dest))
		return dest, nil
	}
}

// handleShortCircuit lowers "and"/"or" without ever evaluating the
// right-hand side unless needed. isAnd selects which branch of the
// CondJump evaluates the right operand.
func (g *Generator) handleShortCircuit(env *scope, n *ast.BinaryOp, isAnd bool) (IRVar, error) {
	left, err := g.handleExpr(env, n.Left)
	if err != nil {
		return "", err
	}
	result := g.fresh()
	g.emit(NewCopy(n.Loc, left, result))

	evalRight := g.freshLabel()
	shortCircuit := g.freshLabel()
	end := g.freshLabel()

	if isAnd {
		g.emit(NewCondJump(n.Loc, left, evalRight, shortCircuit))
	} else {
		g.emit(NewCondJump(n.Loc, left, shortCircuit, evalRight))
	}

	g.emit(NewLabel(n.Loc, evalRight))
	right, err := g.handleExpr(env, n.Right)
	if err != nil {
		return "", err
	}
	g.emit(NewCopy(n.Loc, right, result))
	g.emit(NewJump(n.Loc, end))

	g.emit(NewLabel(n.Loc, shortCircuit))
	// result already holds the short-circuit value; nothing to emit.

	g.emit(NewLabel(n.Loc, end))
	return result, nil
}

func (g *Generator) handleIfExpression(env *scope, n *ast.IfExpression) (IRVar, error) {
	cond, err := g.handleExpr(env, n.Condition)
	if err != nil {
		return "", err
	}

	if n.ElseBranch == nil {
		lThen := g.freshLabel()
		lEnd := g.freshLabel()
		g.emit(NewCondJump(n.Loc, cond, lThen, lEnd))
		g.emit(NewLabel(n.Loc, lThen))
		if _, err := g.handleExpr(env, n.ThenBranch); err != nil {
			return "", err
		}
		g.emit(NewLabel(n.Loc, lEnd))
		return Unit, nil
	}

	result := g.fresh()
	lThen := g.freshLabel()
	lElse := g.freshLabel()
	lEnd := g.freshLabel()
	g.emit(NewCondJump(n.Loc, cond, lThen, lElse))

	g.emit(NewLabel(n.Loc, lThen))
	thenVal, err := g.handleExpr(env, n.ThenBranch)
	if err != nil {
		return "", err
	}
	g.emit(NewCopy(n.Loc, thenVal, result))
	g.emit(NewJump(n.Loc, lEnd))

	g.emit(NewLabel(n.Loc, lElse))
	elseVal, err := g.handleExpr(env, n.ElseBranch)
	if err != nil {
		return "", err
	}
	g.emit(NewCopy(n.Loc, elseVal, result))

	g.emit(NewLabel(n.Loc, lEnd))
	return result, nil
}

func (g *Generator) handleWhileLoop(env *scope, n *ast.WhileLoop) (IRVar, error) {
	lCond := g.freshLabel()
	lBody := g.freshLabel()
	lEnd := g.freshLabel()

	g.continueTo.Push(lCond)
	g.breakTo.Push(lEnd)
	defer func() {
		g.continueTo.Pop()
		g.breakTo.Pop()
	}()

	g.emit(NewJump(n.Loc, lCond))
	g.emit(NewLabel(n.Loc, lCond))
	cond, err := g.handleExpr(env, n.Condition)
	if err != nil {
		return "", err
	}
	g.emit(NewCondJump(n.Loc, cond, lBody, lEnd))

	g.emit(NewLabel(n.Loc, lBody))
	if _, err := g.handleExpr(env, n.Body); err != nil {
		return "", err
	}
	g.emit(NewJump(n.Loc, lCond))

	g.emit(NewLabel(n.Loc, lEnd))
	return Unit, nil
}

func (g *Generator) handleBlock(env *scope, n *ast.Block) (IRVar, error) {
	child := newScope(env)
	for _, stmt := range n.Statements {
		if _, err := g.handleExpr(child, stmt); err != nil {
			return "", err
		}
	}
	return g.handleExpr(child, n.Result)
}

func (g *Generator) handleVarDeclaration(env *scope, n *ast.VarDeclaration) (IRVar, error) {
	init, err := g.handleExpr(env, n.Value)
	if err != nil {
		return "", err
	}
	dest := g.fresh()
	g.emit(NewCopy(n.Loc, init, dest))
	env.define(n.Name, dest)
	return Unit, nil
}

func (g *Generator) handleFunctionCall(env *scope, n *ast.FunctionCall) (IRVar, error) {
	args := make([]IRVar, len(n.Args))
	for i, a := range n.Args {
		v, err := g.handleExpr(env, a)
		if err != nil {
			return "", err
		}
		args[i] = v
	}
	dest := g.fresh()
	g.emit(NewCall(n.Loc, IRVar(n.Callee.Name), args, dest))
	return dest, nil
}

func (g *Generator) handleReturnStatement(env *scope, n *ast.ReturnStatement) (IRVar, error) {
	if n.Value == nil {
		g.emit(NewCopy(n.Loc, Unit, g.returnVar))
		g.emit(NewJump(n.Loc, g.returnLabel))
		return Unit, nil
	}
	v, err := g.handleExpr(env, n.Value)
	if err != nil {
		return "", err
	}
	g.emit(NewCopy(n.Loc, v, g.returnVar))
	g.emit(NewJump(n.Loc, g.returnLabel))
	return Unit, nil
}

// containsReturn reports whether e contains a reachable-by-construction
// 'return' anywhere in its syntactic structure. Mirrors the checker's rule
// for whether a function body's declared type is overridden by a return
// (check/check.go), since the generator needs the same fact to decide
// whether the body's fallthrough value still needs copying into ret1.
func containsReturn(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.ReturnStatement:
		return true
	case *ast.Block:
		for _, s := range n.Statements {
			if containsReturn(s) {
				return true
			}
		}
		return containsReturn(n.Result)
	case *ast.IfExpression:
		if containsReturn(n.Condition) || containsReturn(n.ThenBranch) {
			return true
		}
		return n.ElseBranch != nil && containsReturn(n.ElseBranch)
	case *ast.WhileLoop:
		return containsReturn(n.Condition) || containsReturn(n.Body)
	case *ast.UnaryOp:
		return containsReturn(n.Operand)
	case *ast.BinaryOp:
		return containsReturn(n.Left) || containsReturn(n.Right)
	case *ast.VarDeclaration:
		return containsReturn(n.Value)
	case *ast.FunctionCall:
		for _, a := range n.Args {
			if containsReturn(a) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
